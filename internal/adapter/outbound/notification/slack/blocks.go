package slack

import (
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// BuildPartialExecutorBlocks constructs Block Kit blocks for an executor whose workload is
// running without its service.
func BuildPartialExecutorBlocks(n outbound.PartialExecutorNotification) []slackapi.Block {
	header := slackapi.NewSectionBlock(
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf(":large_yellow_circle: *Executor %s/%s partially created*", n.Namespace, n.Name), false, false),
		nil, nil,
	)

	fields := []*slackapi.TextBlockObject{
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Namespace*\n%s", n.Namespace), false, false),
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Name*\n%s", n.Name), false, false),
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Image*\n`%s`", n.Image), false, false),
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Executor ID*\n`%s`", n.ExecutorID), false, false),
	}

	errBlock := slackapi.NewSectionBlock(
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*Service creation failed*\n```%s```", n.Error), false, false),
		nil, nil,
	)

	hint := slackapi.NewContextBlock("",
		slackapi.NewTextBlockObject(slackapi.MarkdownType,
			"The workload is still running. Retry the service or delete the workload.", false, false),
	)

	return []slackapi.Block{header, slackapi.NewDividerBlock(), slackapi.NewSectionBlock(nil, fields, nil), errBlock, hint}
}
