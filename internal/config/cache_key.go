package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamDefinitionKey returns the cache key for an exam's full definition
// (questions and choices, including correctness flags) as of generation gen.
func (r *CacheKeyStruct) ExamDefinitionKey(examID string, gen int64) string {
	return fmt.Sprintf("exam:%s:definition:%d", examID, gen)
}

// ExamGenerationKey returns the counter bumped on every exam write. Readers
// only look at the definition key of the current generation.
func (r *CacheKeyStruct) ExamGenerationKey(examID string) string {
	return fmt.Sprintf("exam:%s:generation", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// AttemptViolationWindowKey returns the fixed-window counter key used to
// throttle violation reports for one attempt.
func (r *CacheKeyStruct) AttemptViolationWindowKey(attemptID string, window int64) string {
	return fmt.Sprintf("attempt:%s:violations:%d", attemptID, window)
}

var CacheKey = NewCacheKeyStruct()
