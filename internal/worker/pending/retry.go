package pending

import "time"

// maxBackoffFactor は同期間隔に対するバックオフ上限の倍率。
const maxBackoffFactor = 24

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回は同期間隔と同じ、2倍ずつ増加、最大は同期間隔の24倍。
func CalculateBackoff(interval time.Duration, consecutiveFailures int) time.Duration {
	limit := interval * maxBackoffFactor
	delay := interval
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > limit {
			return limit
		}
	}
	return delay
}
