package session

import "musicseed-go/models"

// Messages are the user-facing texts shown after a failure
type Messages struct {
	SearchFailed   string
	AnalyzeFailed  string
	RefineFailed   string
	QuotaExhausted string
	RateLimited    string
}

// DefaultMessages returns the Japanese UI texts
func DefaultMessages() Messages {
	return Messages{
		SearchFailed:   "曲が見つかりませんでした。アーティスト名を含めるなど、詳しく入力してください。",
		AnalyzeFailed:  "分析に失敗しました。もう一度お試しください。",
		RefineFailed:   "調整に失敗しました。もう一度お試しください。",
		QuotaExhausted: "利用上限に達しました。",
		RateLimited:    "リクエスト制限に達しました。少し待ってから再試行してください。",
	}
}

// withDefaults fills every empty text from DefaultMessages
func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.SearchFailed == "" {
		m.SearchFailed = d.SearchFailed
	}
	if m.AnalyzeFailed == "" {
		m.AnalyzeFailed = d.AnalyzeFailed
	}
	if m.RefineFailed == "" {
		m.RefineFailed = d.RefineFailed
	}
	if m.QuotaExhausted == "" {
		m.QuotaExhausted = d.QuotaExhausted
	}
	if m.RateLimited == "" {
		m.RateLimited = d.RateLimited
	}
	return m
}

// describe picks the text for err. Throttling and quota failures get their
// own texts so users can tell a transient limit from a permanent one.
func (m Messages) describe(err error, fallback string) string {
	switch models.KindOf(err) {
	case models.KindRateLimited:
		return m.RateLimited
	case models.KindQuotaExhausted:
		return m.QuotaExhausted
	default:
		return fallback
	}
}
