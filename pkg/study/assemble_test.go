package study

import (
	"testing"

	"studychat/pkg/llm"
)

func TestAssembleRequestMinimal(t *testing.T) {
	msgs := AssembleRequest("You are a study assistant.", nil, PendingTurn{Text: "What is mitosis?"})

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Fatalf("first message role = %q, want system", msgs[0].Role)
	}
	if msgs[1].Role != llm.RoleUser || len(msgs[1].Content) != 1 {
		t.Fatalf("user message malformed: %+v", msgs[1])
	}
	if msgs[1].Content[0].Type != llm.BlockTypeText {
		t.Fatalf("user block type = %q, want text", msgs[1].Content[0].Type)
	}
}

func TestAssembleRequestNoSystemPrompt(t *testing.T) {
	msgs := AssembleRequest("  ", nil, PendingTurn{Text: "hi"})
	if len(msgs) != 1 || msgs[0].Role != llm.RoleUser {
		t.Fatalf("blank system prompt produced a block: %+v", msgs)
	}
}

func TestAssembleRequestTextBeforeMedia(t *testing.T) {
	img := NormalizeImage("data:image/png;base64,AAAA")
	doc := NormalizeDocument("JVBERi0xLjQK")
	msgs := AssembleRequest("sys", nil, PendingTurn{Text: "solve this", Image: &img, Document: &doc})

	user := msgs[len(msgs)-1]
	if len(user.Content) != 3 {
		t.Fatalf("expected text+image+document blocks, got %d", len(user.Content))
	}
	if user.Content[0].Type != llm.BlockTypeText {
		t.Fatal("text block does not precede media")
	}
	if user.Content[1].Media == nil || user.Content[1].Media.MIMEType != "image/png" {
		t.Fatalf("image block wrong: %+v", user.Content[1])
	}
	if user.Content[2].Media == nil || user.Content[2].Media.MIMEType != "application/pdf" {
		t.Fatalf("document block wrong: %+v", user.Content[2])
	}
}

func TestAssembleRequestHistoryRolesAndOrder(t *testing.T) {
	img := NormalizeImage("https://example.com/p.png")
	history := []Turn{
		{Speaker: SpeakerUser, Text: "first question", Media: &img},
		{Speaker: SpeakerAssistant, Text: "first answer"},
	}
	msgs := AssembleRequest("sys", history, PendingTurn{Text: "followup"})

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[1].Role != llm.RoleUser || msgs[2].Role != llm.RoleAssistant {
		t.Fatalf("history roles wrong: %q then %q", msgs[1].Role, msgs[2].Role)
	}
	if len(msgs[1].Content) != 2 || msgs[1].Content[1].Media == nil {
		t.Fatalf("history media lost: %+v", msgs[1])
	}
	if msgs[3].TextContent() != "followup" {
		t.Fatalf("pending turn not last: %+v", msgs[3])
	}
}

func TestAssembleRequestOmitsZeroBlockTurns(t *testing.T) {
	history := []Turn{{Speaker: SpeakerUser, Text: "   "}}
	msgs := AssembleRequest("", history, PendingTurn{Text: "q"})
	if len(msgs) != 1 {
		t.Fatalf("empty history turn produced a message: %+v", msgs)
	}
}
