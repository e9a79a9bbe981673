package sql

func Version() string {
	return "cowrows 0.1"
}
