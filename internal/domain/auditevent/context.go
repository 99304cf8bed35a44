package auditevent

import "context"

type contextKey string

const clientInfoKey contextKey = "audit_client_info"

// ClientInfo carries request attribution for events recorded deeper in the
// call stack, where the HTTP request is no longer in scope.
type ClientInfo struct {
	RemoteAddr string
	UserAgent  string
}

func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientInfoKey, info)
}

func ClientInfoFromContext(ctx context.Context) (ClientInfo, bool) {
	info, ok := ctx.Value(clientInfoKey).(ClientInfo)
	return info, ok
}
