package config

import "fmt"

// QueueKeyStruct names the Redis lists consumed by background workers.
type QueueKeyStruct struct {
	TrackingEventsQueue string
	MarkingJobsQueue    string
}

var QueueKey = &QueueKeyStruct{
	TrackingEventsQueue: "tracking_events_queue",
	MarkingJobsQueue:    "marking_jobs_queue",
}

type CacheKeyStruct struct{}

// UserSessionKey returns the cache key holding a user's active token jti.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// MarkingProgressChannel returns the PubSub channel for an attempt's marking updates.
func (r *CacheKeyStruct) MarkingProgressChannel(attemptID int64) string {
	return fmt.Sprintf("attempt:%d:marking", attemptID)
}

var CacheKey = &CacheKeyStruct{}
