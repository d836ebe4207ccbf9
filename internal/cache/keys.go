package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

func IssueKey(tenantID uuid.UUID, issueID uuid.UUID) string {
	return fmt.Sprintf("issue:%s:%s", tenantID, issueID)
}
