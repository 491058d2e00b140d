package localcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/dermadash/internal/model"
)

// envelope は永続化形式。schema_versionで将来の移行に備える。
type envelope struct {
	SchemaVersion int     `json:"schema_version"`
	NextLocalID   int64   `json:"next_local_id,omitempty"`
	Entries       []Entry `json:"entries"`
}

func emptyEnvelope() *envelope {
	return &envelope{SchemaVersion: SchemaVersion, NextLocalID: 1, Entries: []Entry{}}
}

// legacyRecord は旧ブラウザ版の保存形式。
type legacyRecord struct {
	ID              int64     `json:"id"`
	Date            string    `json:"date"`
	PredictedClass  string    `json:"predicted_class"`
	SimplifiedClass string    `json:"simplified_class"`
	PredictedIndex  *int      `json:"predicted_index"`
	Confidence      float64   `json:"confidence"`
	Probabilities   []float64 `json:"probabilities"`
	Thumb           *string   `json:"thumb"`
}

// load はスロットから保存データを読み込む。呼び出し元はロックを保持していること。
// 旧形式は現在の形式に変換して書き戻す。破損データは退避した上で空として扱う。
func (c *Cache) load(ctx context.Context) (*envelope, error) {
	raw, err := c.slots.Get(ctx, SlotKey)
	if err != nil {
		return nil, fmt.Errorf("診断記録の読み込みに失敗しました: %w", err)
	}

	if raw == nil {
		legacy, err := c.slots.Get(ctx, LegacySlotKey)
		if err != nil {
			return nil, fmt.Errorf("旧形式の診断記録の読み込みに失敗しました: %w", err)
		}
		if legacy == nil {
			return emptyEnvelope(), nil
		}
		return c.migrateLegacySlot(ctx, legacy)
	}

	env, migrated, err := c.decode(raw)
	if err != nil {
		c.quarantine(ctx, SlotKey, raw, err)
		return emptyEnvelope(), nil
	}
	if migrated {
		if err := c.save(ctx, env); err != nil {
			return nil, err
		}
		c.logger.Info("診断記録の保存形式を移行しました",
			slog.Int("schema_version", SchemaVersion),
			slog.Int("entries", len(env.Entries)),
		)
	}
	return env, nil
}

// migrateLegacySlot は旧キーのデータを新キーに移行する。旧キーは移行成功後に削除する。
func (c *Cache) migrateLegacySlot(ctx context.Context, raw []byte) (*envelope, error) {
	env, err := c.decodeLegacy(raw)
	if err != nil {
		c.quarantine(ctx, LegacySlotKey, raw, err)
		return emptyEnvelope(), nil
	}
	if err := c.save(ctx, env); err != nil {
		return nil, err
	}
	if err := c.slots.Delete(ctx, LegacySlotKey); err != nil {
		c.logger.Warn("旧形式の診断記録の削除に失敗しました", slog.String("error", err.Error()))
	}
	c.logger.Info("旧形式の診断記録を移行しました", slog.Int("entries", len(env.Entries)))
	return env, nil
}

// decode は保存データを解釈する。旧形式から変換した場合はmigrated=trueを返す。
func (c *Cache) decode(raw []byte) (env *envelope, migrated bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		env, err := c.decodeLegacy(trimmed)
		return env, true, err
	}

	var e envelope
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return nil, false, err
	}

	switch e.SchemaVersion {
	case SchemaVersion:
		if e.NextLocalID < 1 {
			return nil, false, fmt.Errorf("不正なnext_local_idです: %d", e.NextLocalID)
		}
	case 1:
		// v1はnext_local_idを持たないため、既存の最大値から補う
		migrated = true
		e.SchemaVersion = SchemaVersion
	default:
		return nil, false, fmt.Errorf("未対応のschema_versionです: %d", e.SchemaVersion)
	}

	if e.Entries == nil {
		e.Entries = []Entry{}
	}
	sortEntries(e.Entries)
	for i := range e.Entries {
		if e.Entries[i].Status == "" {
			e.Entries[i].Status = StatusPending
		}
		if e.Entries[i].CorrelationID == "" {
			e.Entries[i].CorrelationID = c.newID()
			migrated = true
		}
		if e.Entries[i].LocalID >= e.NextLocalID {
			e.NextLocalID = e.Entries[i].LocalID + 1
		}
	}
	if e.NextLocalID < 1 {
		e.NextLocalID = 1
	}
	return &e, migrated, nil
}

// decodeLegacy は旧ブラウザ版の配列形式を現在の形式に変換する。
// 旧形式の記録は一度もサーバーに登録されていないため、すべて未確定として扱う。
func (c *Cache) decodeLegacy(raw []byte) (*envelope, error) {
	var records []legacyRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}

	env := emptyEnvelope()
	for _, r := range records {
		createdAt, err := time.Parse(time.RFC3339Nano, r.Date)
		if err != nil {
			return nil, fmt.Errorf("旧形式の日時を解釈できません: id=%d: %w", r.ID, err)
		}

		e := Entry{
			LocalID:           r.ID,
			CorrelationID:     c.newID(),
			Status:            StatusPending,
			CreatedAt:         createdAt,
			ConfidencePercent: r.Confidence,
			RiskLevel:         model.RiskLevelFor(r.Confidence),
		}
		if probs, err := model.ProbabilityVectorFromSlice(r.Probabilities); err == nil {
			e.Probabilities = probs
			e.ClassLabel = model.ClassLabelFor(probs)
		} else {
			label := r.SimplifiedClass
			if label == "" {
				label = r.PredictedClass
			}
			e.ClassLabel = model.ClassLabelFromDiagnosis(label)
		}
		if r.Thumb != nil {
			e.Thumbnail = *r.Thumb
		}
		env.Entries = append(env.Entries, e)
	}

	var maxID int64
	for _, e := range env.Entries {
		maxID = max(maxID, e.LocalID)
	}
	// IDを持たない記録には既存の最大値より後の番号を出現順に割り当てる
	for i := range env.Entries {
		if env.Entries[i].LocalID < 1 {
			maxID++
			env.Entries[i].LocalID = maxID
		}
	}
	env.NextLocalID = max(env.NextLocalID, maxID+1)

	sortEntries(env.Entries)
	return env, nil
}

// quarantine は解釈できないデータを退避し、警告を記録する。
func (c *Cache) quarantine(ctx context.Context, key string, raw []byte, cause error) {
	backupKey := key + corruptSuffix
	if err := c.slots.Put(ctx, backupKey, raw); err != nil {
		c.logger.Error("破損した診断記録の退避に失敗しました",
			slog.String("key", backupKey),
			slog.String("error", err.Error()),
		)
	}
	c.logger.Warn("診断記録を解釈できないため空として扱います",
		slog.String("key", key),
		slog.String("backup_key", backupKey),
		slog.String("error", cause.Error()),
	)
}

// save は保存データを書き込む。呼び出し元はロックを保持していること。
func (c *Cache) save(ctx context.Context, env *envelope) error {
	env.SchemaVersion = SchemaVersion
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("診断記録のシリアライズに失敗しました: %w", err)
	}
	if err := c.slots.Put(ctx, SlotKey, b); err != nil {
		return fmt.Errorf("診断記録の保存に失敗しました: %w", err)
	}
	return nil
}
