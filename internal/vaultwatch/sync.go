package vaultwatch

import (
	"os"
	"time"

	"github.com/arkanvault/corevault/internal/frontmatter"
	"github.com/arkanvault/corevault/internal/identity"
	"github.com/arkanvault/corevault/internal/noteid"
	"github.com/arkanvault/corevault/internal/taskindex"
	"github.com/arkanvault/corevault/internal/taskparser"
)

var taskIDGen = noteid.NewGenerator()

// syncTasksForFile re-parses a markdown file's checkboxes and replaces
// its task-index entries in one call, per spec §4.E's "replace_file
// appears atomic to readers" invariant. Checkboxes without a recoverable
// <!-- tid:uuid --> comment are assigned a fresh task id, scoped purely
// to this in-memory sync (front-matter's Tasks map is the durable home
// for a task's properties; this index is a derived, rebuildable view).
func syncTasksForFile(idx *taskindex.Index, ids *identity.Store, absPath, relPath string) error {
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			idx.ReplaceFile(relPath, nil)
			return nil
		}
		return err
	}

	doc, body := frontmatter.Parse(string(data))
	parsed := taskparser.Parse(body)

	records := make([]taskindex.Record, 0, len(parsed))
	now := time.Now().UTC()
	for _, pt := range parsed {
		taskID := pt.TaskID
		if taskID == "" {
			taskID = taskIDGen.GenerateString()
		}

		status := taskindex.StatusTodo
		var completedAt *time.Time
		if pt.Done {
			status = taskindex.StatusDone
			completedAt = &now
		}

		created := now
		if doc != nil {
			if props, ok := doc.Tasks[taskID]; ok && props.Created != "" {
				if t, err := time.Parse(time.RFC3339, props.Created); err == nil {
					created = t
				}
			}
		}

		records = append(records, taskindex.Record{
			ID:          taskID,
			Path:        relPath,
			Line:        pt.Line,
			Status:      status,
			Text:        pt.CleanText,
			Project:     pt.Project,
			Due:         pt.Due,
			Priority:    pt.Priority,
			Tags:        pt.Tags,
			CreatedAt:   created,
			UpdatedAt:   now,
			CompletedAt: completedAt,
		})
	}

	idx.ReplaceFile(relPath, records)
	return nil
}
