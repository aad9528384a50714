package chat

const (
	truncateAt = 2045
	truncateIf = 2048
)

// truncate applies the resolved 2045/2048 boundary (spec.md §9 Open
// Questions, resolved from original_source/helpers/chatHelper.py):
// truncation only triggers when len(message) > 2048, and the result
// (message[:2045] + "...") is not re-clamped -- it is always exactly
// 2048 bytes.
func truncate(message string) string {
	if len(message) > truncateIf {
		return message[:truncateAt] + "..."
	}
	return message
}
