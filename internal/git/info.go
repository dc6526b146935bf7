package git

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Info describes the repository a project directory belongs to.
type Info struct {
	Root       string
	Repository string
	Branch     string
}

// GetInfo inspects workingDir. Outside a repository, Root is workingDir and
// Branch is "unknown".
func GetInfo(workingDir string) *Info {
	info := &Info{
		Root:       workingDir,
		Repository: filepath.Base(workingDir),
		Branch:     "unknown",
	}

	if !isWorkTree(workingDir) {
		return info
	}

	if top, err := revParse(workingDir, "--show-toplevel"); err == nil {
		info.Root = top
		info.Repository = filepath.Base(top)
	}

	// Worktrees share the main checkout's common dir; name the repository
	// after that checkout.
	if common, err := revParse(workingDir, "--git-common-dir"); err == nil {
		if !filepath.IsAbs(common) {
			common = filepath.Join(workingDir, common)
		}
		if filepath.Base(common) == ".git" {
			info.Repository = filepath.Base(filepath.Dir(common))
		}
	}

	if branch, err := revParse(workingDir, "--abbrev-ref", "HEAD"); err == nil && branch != "" {
		info.Branch = branch
	}

	return info
}

// ProjectRoot returns the top of the repository containing dir, or dir.
func ProjectRoot(dir string) string {
	return GetInfo(dir).Root
}

// ChangedFiles lists staged, unstaged and untracked files relative to the
// repository root, sorted.
func ChangedFiles(workingDir string) ([]string, error) {
	if !isWorkTree(workingDir) {
		return nil, fmt.Errorf("not a git repository: %s", workingDir)
	}

	seen := make(map[string]bool)
	for _, args := range [][]string{
		{"diff", "--name-only", "--cached"},
		{"diff", "--name-only"},
		{"ls-files", "--others", "--exclude-standard", "--full-name"},
	} {
		cmd := exec.Command("git", append([]string{"-C", workingDir}, args...)...)
		output, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
		}
		for _, line := range strings.Split(string(output), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				seen[line] = true
			}
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func isWorkTree(dir string) bool {
	out, err := revParse(dir, "--is-inside-work-tree")
	return err == nil && out == "true"
}

func revParse(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir, "rev-parse"}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}
