package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateLabCache drops lab definition caches after a lab or its
// structures change.
func InvalidateLabCache(ctx context.Context, cm *CacheManager, labID uint) {
	SafeDelete(ctx, cm.Lab,
		fmt.Sprintf("id:%d", labID),
		fmt.Sprintf("details:%d", labID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("lab:%d:*", labID))
}

// InvalidateAttemptCache drops attempt caches after a state transition,
// response write or grading pass.
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID, labID uint, studentID string) {
	SafeDelete(ctx, cm.Attempt,
		fmt.Sprintf("id:%d", attemptID),
		fmt.Sprintf("active:%d:%s", labID, studentID))
	SafeInvalidatePattern(ctx, cm.Attempt, fmt.Sprintf("lab:%d:*", labID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("lab:%d:*", labID))
}
