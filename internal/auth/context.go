package auth

import "context"

type contextKey struct{}

// AuthContext is the verified caller attached to each authenticated request.
// CoupleID is empty for users who have not joined a couple yet.
type AuthContext struct {
	UserID   string
	Email    string
	CoupleID string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func CoupleID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.CoupleID
}

func UserID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.UserID
}

// InCouple reports whether the caller belongs to a couple.
func InCouple(ctx context.Context) bool {
	return CoupleID(ctx) != ""
}
