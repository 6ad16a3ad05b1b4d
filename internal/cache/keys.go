package cache

import "fmt"

func JobStatusKey(jobID string) string {
	return fmt.Sprintf("eventpredict:job:%s", jobID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("eventpredict:ratelimit:%s", client)
}
