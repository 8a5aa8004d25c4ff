// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestId_Constants(t *testing.T) {
	ids := []Id{
		PreconditionUnmetId,
		ManifestNotFoundId,
		ManifestInvalidId,
		StagingFailedId,
		InstallFailedId,
		ArchiveFailedId,
		PublishFailedId,
		ConfigLoadFailedId,
	}

	seen := make(map[Id]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate ID: %d", id)
		}
		seen[id] = true

		entry := Get(id)
		if entry == nil {
			t.Errorf("Get(%d) returned nil; every Id needs a catalog entry", id)
			continue
		}
		if entry.Name() == "" {
			t.Errorf("issue %d has no kind name", id)
		}
		if strings.TrimSpace(string(entry.MarkdownMsg())) == "" {
			t.Errorf("issue %d has an empty message", id)
		}
	}

	if PreconditionUnmetId != 1 {
		t.Errorf("PreconditionUnmetId = %d, want 1", PreconditionUnmetId)
	}
}

func TestGet_Unknown(t *testing.T) {
	if Get(0) != nil {
		t.Error("Get(0) should return nil")
	}
	if Get(Id(999)) != nil {
		t.Error("Get(999) should return nil")
	}
}

func TestValues_Ordered(t *testing.T) {
	values := Values()
	if len(values) != len(issues) {
		t.Fatalf("Values() returned %d entries, want %d", len(values), len(issues))
	}
	for i := 1; i < len(values); i++ {
		if values[i-1].Id() >= values[i].Id() {
			t.Errorf("Values() not ordered at %d: %d >= %d", i, values[i-1].Id(), values[i].Id())
		}
	}
}

func TestIssue_DocLinksCloned(t *testing.T) {
	entry := Get(PreconditionUnmetId)
	links := entry.DocLinks()
	if len(links) == 0 {
		t.Fatal("expected doc links on the precondition issue")
	}
	links[0] = "mutated"
	if entry.DocLinks()[0] == "mutated" {
		t.Error("DocLinks() should return a copy")
	}
}

func TestIssue_Render(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	var gotIn, gotStyle string
	render = func(in string, stylePath string) (string, error) {
		gotIn, gotStyle = in, stylePath
		return "rendered", nil
	}

	out, err := Get(PreconditionUnmetId).Render("dark")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "rendered" {
		t.Errorf("Render() = %q", out)
	}
	if gotStyle != "dark" {
		t.Errorf("style = %q, want dark", gotStyle)
	}
	if !strings.Contains(gotIn, "npm 3 or newer") {
		t.Error("rendered markdown should contain the issue message")
	}
	if !strings.Contains(gotIn, "## See also") {
		t.Error("rendered markdown should list doc links")
	}
}

func TestIssue_RenderWithGlamour(t *testing.T) {
	out, err := Get(InstallFailedId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "Dependency install failed") {
		t.Errorf("Render() output missing heading:\n%s", out)
	}
}
