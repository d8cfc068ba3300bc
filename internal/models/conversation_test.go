package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimNoOpUnderLimit(t *testing.T) {
	conv := Conversation{}.
		Append(RoleSystem, "ctx").
		Append(RoleUser, "q1").
		Append(RoleAssistant, "a1")
	assert.Equal(t, conv, conv.Trim(10))
}

func TestTrimKeepsSystemTurn(t *testing.T) {
	maxPairs := 3
	conv := Conversation{{Role: RoleSystem, Content: "ctx"}}
	for i := 0; i < 20; i++ {
		conv = conv.
			Append(RoleUser, fmt.Sprintf("q%d", i)).
			Append(RoleAssistant, fmt.Sprintf("a%d", i))
		conv = conv.Trim(maxPairs)
		assert.LessOrEqual(t, len(conv), 1+2*maxPairs)
		assert.Equal(t, RoleSystem, conv[0].Role, "system turn must stay at index 0")
		assert.Equal(t, "ctx", conv[0].Content)
	}
	// most recent pairs survive
	assert.Equal(t, "q17", conv[1].Content)
	assert.Equal(t, "a19", conv[len(conv)-1].Content)
}

func TestTrimWithoutSystemTurn(t *testing.T) {
	maxPairs := 2
	var conv Conversation
	for i := 0; i < 10; i++ {
		conv = conv.
			Append(RoleUser, fmt.Sprintf("q%d", i)).
			Append(RoleAssistant, fmt.Sprintf("a%d", i))
		conv = conv.Trim(maxPairs)
	}
	assert.Len(t, conv, 2*maxPairs)
	assert.Equal(t, "q8", conv[0].Content)
	assert.Equal(t, "a9", conv[len(conv)-1].Content)
	assert.False(t, conv.HasSystem())
}

func TestTrimDiscardsMiddleOnly(t *testing.T) {
	conv := Conversation{{Role: RoleSystem, Content: "ctx"}}
	for i := 0; i < 5; i++ {
		conv = conv.
			Append(RoleUser, fmt.Sprintf("q%d", i)).
			Append(RoleAssistant, fmt.Sprintf("a%d", i))
	}
	trimmed := conv.Trim(2)
	want := Conversation{
		{Role: RoleSystem, Content: "ctx"},
		{Role: RoleUser, Content: "q3"},
		{Role: RoleAssistant, Content: "a3"},
		{Role: RoleUser, Content: "q4"},
		{Role: RoleAssistant, Content: "a4"},
	}
	assert.Equal(t, want, trimmed)
}

func TestTrimDoesNotAliasOriginal(t *testing.T) {
	conv := Conversation{{Role: RoleSystem, Content: "ctx"}}
	for i := 0; i < 6; i++ {
		conv = conv.
			Append(RoleUser, "q").
			Append(RoleAssistant, "a")
	}
	trimmed := conv.Trim(1)
	trimmed[0].Content = "changed"
	assert.Equal(t, "ctx", conv[0].Content)
}

func TestBillable(t *testing.T) {
	billable := map[TaskKind]bool{
		TaskGeneratePlan:  true,
		TaskGenerateTasks: true,
		TaskCheckHomework: true,
		TaskChat:          false,
		TaskEndChat:       false,
	}
	for kind, want := range billable {
		task := TaskEnvelope{Kind: kind}
		assert.Equal(t, want, task.Billable(), "kind %s", kind)
	}
}
