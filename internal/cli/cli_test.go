package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Kerhoff/wishlist/internal/auth"
)

// setupEnv points the CLI at an empty local data directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		"ACCESS_TOKEN", "GH_TOKEN", "REPOSITORY", "GH_REPO", "DATABASE_URL",
		"TOKEN_SECRET", "TELEGRAM_TOKEN", "PASSWORD_HASH", "STRICT_READS",
	} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// mustRun runs a command and decodes the "data" member of its output.
func mustRun(t *testing.T, out any, args ...string) {
	t.Helper()
	stdout, stderr, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("wishlist %v: %v\nstderr:\n%s", args, err, stderr)
	}
	env := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal([]byte(stdout), &env); err != nil {
		t.Fatalf("decode output of %v: %v\n%s", args, err, stdout)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data of %v: %v\n%s", args, err, stdout)
		}
	}
}

func TestCLIWishlistLifecycle(t *testing.T) {
	setupEnv(t)

	var created struct{ ID string }
	mustRun(t, &created, "create", "Christmas", "--password", "pw")
	if len(created.ID) != 12 {
		t.Fatalf("id = %q, want 12 characters", created.ID)
	}

	var lists []struct{ ID, Name string }
	mustRun(t, &lists, "lists")
	if len(lists) != 1 || lists[0].ID != created.ID || lists[0].Name != "Christmas" {
		t.Fatalf("lists = %+v", lists)
	}

	var shown map[string]any
	mustRun(t, &shown, "show", created.ID, "--password", "pw")
	if shown["name"] != "Christmas" {
		t.Errorf("show = %v", shown)
	}
	if _, leaked := shown["password_hash"]; leaked {
		t.Error("show must not print the password hash")
	}

	if _, _, err := runCLI(t, "show", created.ID, "--password", "wrong"); err == nil {
		t.Error("show with a wrong password should fail")
	}

	mustRun(t, nil, "delete", created.ID)
	if _, _, err := runCLI(t, "show", created.ID); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("show after delete error = %v", err)
	}
	mustRun(t, &lists, "lists")
	if len(lists) != 0 {
		t.Errorf("lists after delete = %+v", lists)
	}
}

func TestCLICreateRequiresPassword(t *testing.T) {
	setupEnv(t)

	if _, _, err := runCLI(t, "create", "Christmas"); err == nil {
		t.Fatal("create without --password should fail")
	}
	if _, _, err := runCLI(t, "create", "  ", "--password", "pw"); err == nil {
		t.Fatal("create with a blank name should fail")
	}
}

func TestCLIReconcileRestoresIndex(t *testing.T) {
	dir := setupEnv(t)

	var a, b struct{ ID string }
	mustRun(t, &a, "create", "A", "--password", "pw")
	mustRun(t, &b, "create", "B", "--password", "pw")

	if err := os.Remove(filepath.Join(dir, "wishlists_index.json")); err != nil {
		t.Fatal(err)
	}
	var lists []struct{ ID string }
	mustRun(t, &lists, "lists")
	if len(lists) != 0 {
		t.Fatalf("lists without index = %+v", lists)
	}

	var report struct {
		Added     []string `json:"added"`
		Rewritten bool     `json:"rewritten"`
	}
	mustRun(t, &report, "reconcile")
	if !report.Rewritten || len(report.Added) != 2 {
		t.Fatalf("report = %+v", report)
	}
	mustRun(t, &lists, "lists")
	if len(lists) != 2 {
		t.Errorf("lists after reconcile = %+v", lists)
	}
}

func TestCLIToken(t *testing.T) {
	setupEnv(t)

	if _, _, err := runCLI(t, "token"); err == nil {
		t.Fatal("token without TOKEN_SECRET should fail")
	}

	t.Setenv("TOKEN_SECRET", "s3cret")
	var out struct {
		Subject string `json:"subject"`
		Token   string `json:"token"`
	}
	mustRun(t, &out, "token")
	if out.Subject != auth.AdminSubject {
		t.Errorf("subject = %q", out.Subject)
	}
	subject, err := auth.NewTokenIssuer("s3cret", 0).Validate(out.Token)
	if err != nil || subject != auth.AdminSubject {
		t.Errorf("Validate() = %q, %v", subject, err)
	}
}
