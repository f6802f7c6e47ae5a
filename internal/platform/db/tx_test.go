package db

import (
	"context"
	"errors"
	"testing"
)

func TestConnFromContext_Empty(t *testing.T) {
	if q := ConnFromContext(context.Background()); q != nil {
		t.Errorf("expected nil querier, got %v", q)
	}
}

func TestNoTx(t *testing.T) {
	want := errors.New("boom")
	called := false
	err := NoTx(context.Background(), func(ctx context.Context) error {
		called = true
		if ConnFromContext(ctx) != nil {
			t.Error("expected no transaction in context")
		}
		return want
	})
	if !called {
		t.Fatal("expected fn to run")
	}
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}
