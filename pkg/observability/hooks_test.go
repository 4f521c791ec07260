package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	s := NoopScanHooks{}
	s.OnScanQueued(ctx, 1, "npm")
	s.OnScanStart(ctx, 1, "npm")
	s.OnScanComplete(ctx, 1, "npm", "failed", time.Second, errors.New("boom"))
	s.OnFetchComplete(ctx, "npm", 120, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "summary")
	c.OnCacheMiss(ctx, "registry")
	c.OnCacheSet(ctx, "summary", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "registry.npmjs.org", "/lodash")
	h.OnResponse(ctx, "GET", "registry.npmjs.org", "/lodash", 200, time.Second)
	h.OnError(ctx, "GET", "registry.npmjs.org", "/lodash", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Scan().(NoopScanHooks); !ok {
		t.Error("Scan() should return NoopScanHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customScan := &testScanHooks{}
	SetScanHooks(customScan)
	if Scan() != customScan {
		t.Error("SetScanHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	Reset()
	if _, ok := Scan().(NoopScanHooks); !ok {
		t.Error("Reset() should restore NoopScanHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testScanHooks{}
	SetScanHooks(custom)
	SetScanHooks(nil)

	if Scan() != custom {
		t.Error("SetScanHooks(nil) should be ignored")
	}
}

type testScanHooks struct{ NoopScanHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
