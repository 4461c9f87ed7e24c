package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.SyncCompleted("applied", 20*time.Millisecond)
	r.SyncCompleted("applied", 30*time.Millisecond)
	r.SyncCompleted("transient", time.Millisecond)
	r.SyncCoalesced()
	r.CartCreated()
	r.PointerWrite("ok")
	r.RemoteCall("get", nil)
	r.RemoteCall("get", errors.New("boom"))

	if got := testutil.ToFloat64(r.syncs.WithLabelValues("applied")); got != 2 {
		t.Errorf("syncs{applied} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.coalesced); got != 1 {
		t.Errorf("coalesced = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.remoteCalls.WithLabelValues("get", "error")); got != 1 {
		t.Errorf("remote_calls{get,error} = %v, want 1", got)
	}
}

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	r.SyncCompleted("applied", time.Second)
	r.SyncCoalesced()
	r.StaleResult()
	r.CartCreated()
	r.PointerWrite("error")
	r.RemoteCall("add", nil)
	r.SessionsActive(3)
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.CartCreated()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "cartsync_remote_carts_created_total 1") {
		t.Errorf("exposition missing created counter:\n%s", body)
	}
}
