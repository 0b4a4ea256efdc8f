package application

import (
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// BuildNotification renders the alert for a run that crossed the notify
// threshold. The title carries the conclusion when one exists and the status
// otherwise.
func BuildNotification(key model.TargetKey, run model.RunSummary, now time.Time) model.Notification {
	name := run.Name
	if name == "" {
		name = fmt.Sprintf("run #%d", run.RunID)
	}

	outcome := string(run.Conclusion)
	if outcome == "" {
		outcome = string(run.Status)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Repository: %s\n", key.RepoFullName())
	fmt.Fprintf(&body, "Branch: %s\n", key.Branch)
	fmt.Fprintf(&body, "Status: %s", run.Status)
	if run.HTMLURL != "" {
		fmt.Fprintf(&body, "\n%s", run.HTMLURL)
	}

	return model.Notification{
		Target:     key,
		RunID:      run.RunID,
		RunName:    run.Name,
		Status:     run.Status,
		Conclusion: run.Conclusion,
		URL:        run.HTMLURL,
		Title:      fmt.Sprintf("Workflow %s - %s", name, outcome),
		Body:       body.String(),
		CreatedAt:  now.UTC(),
	}
}
