package backend

import (
	"encoding/json"
	"sort"
	"strings"
)

// flattenFieldErrors は {"field": ["msg", ...]} 形式のフィールドエラーを
// フィールド名順に ", " 区切りで連結する。
func flattenFieldErrors(fields map[string]json.RawMessage) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msgs []string
	for _, k := range keys {
		raw := fields[k]

		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			msgs = append(msgs, list...)
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			msgs = append(msgs, s)
			continue
		}

		// ネストしたオブジェクト（non_field_errors等）は再帰的に展開する
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if m := flattenFieldErrors(nested); m != "" {
				msgs = append(msgs, m)
			}
		}
	}
	return strings.Join(msgs, ", ")
}
