package ctxkeys

// CallIDKey context 中正在处理的捕获记录ID
type CallIDKey struct{}
