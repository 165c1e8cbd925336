package model

// JobProgressEvent is the latest known state of one running remote job.
// Each event fully replaces the previous one; events are never accumulated.
type JobProgressEvent struct {
	Current      int                      `json:"current"`
	Total        int                      `json:"total"`
	Percentage   float64                  `json:"percentage"`
	Message      string                   `json:"message"`
	Language     string                   `json:"language"`
	LangProgress map[string]int           `json:"lang_progress,omitempty"`
	Stats        map[string]LanguageStats `json:"stats,omitempty"`
}

// LanguageStats are per-language counters reported by a translation job.
type LanguageStats struct {
	Translated int `json:"translated"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// TranslationJobResult is the terminal payload of a bulk translation job.
type TranslationJobResult struct {
	Success            bool                     `json:"success"`
	LanguagesProcessed []string                 `json:"languages_processed"`
	StatsByLanguage    map[string]LanguageStats `json:"stats_by_language"`
}

// JobKind distinguishes the two long-running job types the remote service
// runs. The caller that started a job knows its kind statically; result
// payloads are never inspected to guess it.
type JobKind string

// Job kinds.
const (
	JobTranslate JobKind = "translate"
	JobVerify    JobKind = "verify"
)
