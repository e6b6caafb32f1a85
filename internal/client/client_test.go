package client

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"certified/internal/digest"
	"certified/internal/model"
)

func TestPublishVerifyLifecycle(t *testing.T) {
	sut := startSystemUnderTest(t)
	defer sut.Close()
	admin := NewClient(sut.BaseURL, nil).WithToken(sut.Admin)
	public := NewClient(sut.BaseURL, nil)
	ctx := testContext(t)

	if _, err := public.GetArtifact(ctx, "lesson-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found before publish, got %v", err)
	}

	draft, err := admin.UpsertItem(ctx, "lesson-1", "", json.RawMessage(`{"title":"Ratios","steps":["a","b"]}`))
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	published, err := admin.Publish(ctx, "lesson-1", draft.String(model.FieldLockHash))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	art, err := public.GetArtifact(ctx, "lesson-1")
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if art.ETag != digest.Quote(published.String(model.FieldSHA256)) {
		t.Fatalf("etag %s does not match published digest %s", art.ETag, published.String(model.FieldSHA256))
	}
	sig, err := public.GetSignature(ctx, "lesson-1")
	if err != nil {
		t.Fatalf("get signature: %v", err)
	}

	res, err := public.Verify(ctx, model.VerifyRequest{
		Artifact:  art.Content,
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.OK || digest.Quote(res.SHA256) != art.ETag {
		t.Fatalf("unexpected verify result %+v for etag %s", res, art.ETag)
	}

	tampered := bytes.Replace(art.Content, []byte("Ratios"), []byte("Rations"), 1)
	res, err = public.Verify(ctx, model.VerifyRequest{
		Artifact:  tampered,
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if res.OK || res.Reason != model.ReasonSignatureInvalid {
		t.Fatalf("tampered artifact verified: %+v", res)
	}

	if _, err := public.Verify(ctx, model.VerifyRequest{ID: "missing", Signature: "AAAA"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

func TestStaleLockHashConflicts(t *testing.T) {
	sut := startSystemUnderTest(t)
	defer sut.Close()
	admin := NewClient(sut.BaseURL, nil).WithToken(sut.Admin)
	ctx := testContext(t)

	draft, err := admin.UpsertItem(ctx, "doc", "", json.RawMessage(`{"v":1}`))
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	lock := draft.String(model.FieldLockHash)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = admin.Publish(ctx, "doc", lock)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		var apiErr *APIError
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrLockConflict) && errors.As(err, &apiErr):
			conflicts++
			if apiErr.Location != "/api/certified/items/doc" {
				t.Fatalf("conflict location = %q", apiErr.Location)
			}
		default:
			t.Fatalf("unexpected publish error: %v", err)
		}
	}
	if ok != 1 || conflicts != 4 {
		t.Fatalf("expected one winner and four conflicts, got ok=%d conflicts=%d", ok, conflicts)
	}

	_, err = admin.Publish(ctx, "doc", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.CodeNoLockHash {
		t.Fatalf("expected NO_LOCK_HASH, got %v", err)
	}
}

func TestArtifactsSurviveRestart(t *testing.T) {
	sut := startSystemUnderTest(t)
	defer sut.Close()
	ctx := testContext(t)

	admin := NewClient(sut.BaseURL, nil).WithToken(sut.Admin)
	draft, err := admin.UpsertItem(ctx, "kept", "", json.RawMessage(`{"v":[1,2,3]}`))
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := admin.Publish(ctx, "kept", draft.String(model.FieldLockHash)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	before, err := NewClient(sut.BaseURL, nil).GetArtifact(ctx, "kept")
	if err != nil {
		t.Fatalf("get before restart: %v", err)
	}

	sut.restart(t)

	after, err := NewClient(sut.BaseURL, nil).GetArtifact(ctx, "kept")
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if before.ETag != after.ETag || !bytes.Equal(before.Content, after.Content) {
		t.Fatalf("artifact changed across restart: %s vs %s", before.ETag, after.ETag)
	}
}

func TestItemAndAuditReads(t *testing.T) {
	sut := startSystemUnderTest(t)
	defer sut.Close()
	ctx := testContext(t)
	admin := NewClient(sut.BaseURL, nil).WithToken(sut.Admin)

	draft, err := admin.UpsertItem(ctx, "unit 7", "", json.RawMessage(`"hello"`))
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := admin.Publish(ctx, "unit 7", draft.String(model.FieldLockHash)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	item, err := admin.GetItem(ctx, "unit 7")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.String(model.FieldStatus) != model.StatusPublished {
		t.Fatalf("item status = %q", item.String(model.FieldStatus))
	}
	art, err := NewClient(sut.BaseURL, nil).GetArtifact(ctx, "unit 7")
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if string(art.Content) != `"hello"` {
		t.Fatalf("artifact body = %s", art.Content)
	}

	records, err := admin.Audit(ctx, model.KindAudit)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected create and publish audit records, got %d", len(records))
	}
	all, err := admin.Audit(ctx, "")
	if err != nil {
		t.Fatalf("audit all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 records, got %d", len(all))
	}

	if _, err := NewClient(sut.BaseURL, nil).GetItem(ctx, "unit 7"); err == nil {
		t.Fatalf("item read without a session must fail")
	}
	if _, err := admin.GetItem(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
