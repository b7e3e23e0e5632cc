package study

import "studychat/pkg/llm"

// AssembleRequest merges the system prompt, the compacted history and
// the pending turn into one ordered message list consumable by a model
// adapter.
//
// Ordering contract: the optional system message comes first, then one
// message per history turn (oldest first), then the pending user
// message. Within a turn the text block always precedes media blocks,
// because the remote model associates media with the adjacent text. The
// pending message may carry both an image and a document; the document
// block comes last. Turns that produce zero blocks are omitted.
func AssembleRequest(systemPrompt string, history []Turn, pending PendingTurn) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)

	if block, err := llm.NewTextBlock(systemPrompt); err == nil {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: []llm.ContentBlock{block},
		})
	}

	for _, turn := range history {
		msg := llm.Message{Role: roleFor(turn.Speaker)}
		if block, err := llm.NewTextBlock(turn.Text); err == nil {
			msg.Append(block)
		}
		if turn.Media != nil {
			if block, err := llm.NewMediaBlock(turn.Media.URI(), turn.Media.MIMEType); err == nil {
				msg.Append(block)
			}
		}
		if len(msg.Content) == 0 {
			continue
		}
		messages = append(messages, msg)
	}

	user := llm.Message{Role: llm.RoleUser}
	if block, err := llm.NewTextBlock(pending.Text); err == nil {
		user.Append(block)
	}
	if pending.Image != nil {
		if block, err := llm.NewMediaBlock(pending.Image.URI(), pending.Image.MIMEType); err == nil {
			user.Append(block)
		}
	}
	if pending.Document != nil {
		if block, err := llm.NewMediaBlock(pending.Document.URI(), pending.Document.MIMEType); err == nil {
			user.Append(block)
		}
	}
	if len(user.Content) > 0 {
		messages = append(messages, user)
	}

	return messages
}

func roleFor(s Speaker) string {
	if s == SpeakerAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}
