package repo

import (
	"context"
	"io"
)

// Fake is an Accessor for tests. Nil function fields succeed with zero
// values; CheckoutFunc defaults to creating an empty dir.
type Fake struct {
	ListRefsFunc func(ctx context.Context, gitURL string) ([]Ref, error)
	ValidateFunc func(ctx context.Context, gitURL string) error
	CheckoutFunc func(ctx context.Context, gitURL, branch, dir string, logw io.Writer) error
}

func (f *Fake) ListRefs(ctx context.Context, gitURL string) ([]Ref, error) {
	if f.ListRefsFunc == nil {
		return nil, nil
	}
	return f.ListRefsFunc(ctx, gitURL)
}

func (f *Fake) Validate(ctx context.Context, gitURL string) error {
	if f.ValidateFunc == nil {
		return nil
	}
	return f.ValidateFunc(ctx, gitURL)
}

func (f *Fake) Checkout(ctx context.Context, gitURL, branch, dir string, logw io.Writer) error {
	if f.CheckoutFunc == nil {
		return mkdir(dir)
	}
	return f.CheckoutFunc(ctx, gitURL, branch, dir, logw)
}
