package gateways

import (
	"context"
	"io"
	"reflect"
	"testing"
)

type stubClient struct{ name string }

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) FetchModels(context.Context) ([]ModelRecord, error) { return nil, nil }

func (s *stubClient) Complete(context.Context, Request) (io.ReadCloser, error) {
	return nil, nil
}

func TestRegistryOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubClient{name: "b"})
	r.Register(&stubClient{name: "a"})
	r.Register(&stubClient{name: "c"})

	if got := r.List(); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Errorf("List() = %v, want registration order", got)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestRegistryReplaceKeepsPosition(t *testing.T) {
	r := NewRegistry()
	first := &stubClient{name: "a"}
	second := &stubClient{name: "a"}
	r.Register(first)
	r.Register(&stubClient{name: "b"})
	r.Register(second)

	if got := r.List(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("List() = %v", got)
	}
	if c, _ := r.Get("a"); c != second {
		t.Error("re-registering must replace the client")
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubClient{name: "a"})

	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) found")
	}
}

func TestRegistryMustGetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustGet on a missing name must panic")
		}
	}()
	NewRegistry().MustGet("missing")
}
