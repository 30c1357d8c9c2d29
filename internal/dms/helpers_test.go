package dms_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"dms-go/internal/dms"
	"dms-go/internal/testutil"
)

func upload(t *testing.T, h *testutil.Harness, name string, parentID *string, content string) *dms.Node {
	t.Helper()
	node, err := h.Service.UploadFile(context.Background(), dms.UploadRequest{
		Name:        name,
		ParentID:    parentID,
		Content:     strings.NewReader(content),
		ContentType: "text/plain",
	})
	if err != nil {
		t.Fatalf("UploadFile(%q) error = %v", name, err)
	}
	return node
}

func mkdir(t *testing.T, h *testutil.Harness, name string, parentID *string) *dms.Node {
	t.Helper()
	node, err := h.Service.CreateFolder(context.Background(), name, parentID)
	if err != nil {
		t.Fatalf("CreateFolder(%q) error = %v", name, err)
	}
	return node
}

func update(t *testing.T, h *testutil.Harness, fileID, content string) *dms.UpdateResult {
	t.Helper()
	res, err := h.Service.UpdateFileContent(context.Background(), dms.UpdateRequest{
		FileID:      fileID,
		Content:     strings.NewReader(content),
		ContentType: "text/plain",
	})
	if err != nil {
		t.Fatalf("UpdateFileContent(%s) error = %v", fileID, err)
	}
	return res
}

func download(t *testing.T, h *testutil.Harness, fileID string) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := h.Service.Download(context.Background(), fileID, &buf); err != nil {
		t.Fatalf("Download(%s) error = %v", fileID, err)
	}
	return buf.String()
}

func share(t *testing.T, h *testutil.Harness, fileID string, with dms.Actor, level dms.PermissionLevel) *dms.ShareWithActor {
	t.Helper()
	s, err := h.Service.ShareDocument(context.Background(), fileID, with.ID, level)
	if err != nil {
		t.Fatalf("ShareDocument(%s, %s) error = %v", fileID, with.ID, err)
	}
	return s
}

func names(nodes []*dms.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
