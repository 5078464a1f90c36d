package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// readFileMaxBytes bounds how much of a file is returned to the planner.
const readFileMaxBytes = 64 * 1024

// ListFilesTool lists directory entries under the workspace root. The
// instruction is interpreted as a workspace-relative path; blank means the
// root itself.
type ListFilesTool struct {
	Root string
}

// Name returns the tool name.
func (t *ListFilesTool) Name() string { return "LIST_FILES" }

// Description returns the catalog line.
func (t *ListFilesTool) Description() string {
	return "List files and directories at a workspace-relative path. Instruction: the path to list, empty for the workspace root."
}

// Execute lists the directory.
func (t *ListFilesTool) Execute(ctx context.Context, _ *models.Plan, instruction, _ string) (*models.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := resolveWorkspacePath(t.Root, instruction)
	if err != nil {
		return models.ErrorResult("", err.Error()), nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return models.ErrorResult("", fmt.Sprintf("cannot list %s: %v", instruction, err)), nil
	}
	if len(entries) == 0 {
		return models.Ok("(empty directory)"), nil
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		lines = append(lines, name)
	}
	return models.Ok(strings.Join(lines, "\n")), nil
}

// ReadFileTool returns the content of a workspace file, truncated to a
// sane size for prompt injection.
type ReadFileTool struct {
	Root string
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string { return "READ_FILE" }

// Description returns the catalog line.
func (t *ReadFileTool) Description() string {
	return "Read the content of a workspace-relative file. Instruction: the file path to read."
}

// Execute reads the file.
func (t *ReadFileTool) Execute(ctx context.Context, _ *models.Plan, instruction, _ string) (*models.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := resolveWorkspacePath(t.Root, instruction)
	if err != nil {
		return models.ErrorResult("", err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ErrorResult("", fmt.Sprintf("cannot read %s: %v", instruction, err)), nil
	}
	content := string(data)
	if len(content) > readFileMaxBytes {
		content = content[:readFileMaxBytes] + "\n... (truncated)"
	}
	return models.Ok(content), nil
}

// resolveWorkspacePath joins a relative path onto root and rejects
// attempts to escape it.
func resolveWorkspacePath(root, relative string) (string, error) {
	if root == "" {
		root = "."
	}
	relative = strings.TrimSpace(relative)
	if relative == "" {
		relative = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %v", err)
	}
	joined := filepath.Clean(filepath.Join(absRoot, relative))
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", relative)
	}
	return joined, nil
}
