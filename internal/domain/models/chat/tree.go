package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"hugchat/internal/domain"
)

// FindMessage locates a message anywhere in the conversation tree,
// including side branches, by breadth-first traversal from the root.
// Legacy conversations fall back to a linear scan.
func FindMessage(conv *Conversation, id string) (*Message, error) {
	if conv.RootMessageID == "" {
		for i := range conv.Messages {
			if conv.Messages[i].ID == id {
				return &conv.Messages[i], nil
			}
		}
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("message %s not found", id)}
	}

	index := messageIndex(conv)
	queue := []string{conv.RootMessageID}
	visited := make(map[string]bool, len(conv.Messages))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true

		msg, ok := index[current]
		if !ok {
			continue
		}
		if msg.ID == id {
			return msg, nil
		}
		queue = append(queue, msg.Children...)
	}

	return nil, &domain.NotFoundError{Message: fmt.Sprintf("message %s not found", id)}
}

// BuildSubtree returns the linear path from the root to leafID inclusive,
// following the leaf's denormalized ancestors. This is the exact message
// sequence used to build a model prompt.
func BuildSubtree(conv *Conversation, leafID string) ([]Message, error) {
	if conv.RootMessageID == "" {
		// legacy conversation: slice up to and including the leaf
		if len(conv.Messages) == 0 {
			return nil, &domain.NotFoundError{Message: "conversation has no messages"}
		}
		for i := range conv.Messages {
			if conv.Messages[i].ID == leafID {
				path := make([]Message, i+1)
				copy(path, conv.Messages[:i+1])
				return path, nil
			}
		}
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("message %s not found", leafID)}
	}

	index := messageIndex(conv)
	leaf, ok := index[leafID]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("message %s not found", leafID)}
	}

	path := make([]Message, 0, len(leaf.Ancestors)+1)
	for _, ancestorID := range leaf.Ancestors {
		ancestor, ok := index[ancestorID]
		if !ok {
			return nil, &domain.NotFoundError{Message: fmt.Sprintf("ancestor %s not found", ancestorID)}
		}
		path = append(path, *ancestor)
	}
	path = append(path, *leaf)
	return path, nil
}

// GetChildren returns the direct children of a message, in tree order.
// For legacy conversations the single next message is the only child.
func GetChildren(conv *Conversation, id string) ([]Message, error) {
	if conv.RootMessageID == "" {
		for i := range conv.Messages {
			if conv.Messages[i].ID == id {
				if i+1 < len(conv.Messages) {
					return []Message{conv.Messages[i+1]}, nil
				}
				return nil, nil
			}
		}
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("message %s not found", id)}
	}

	parent, err := FindMessage(conv, id)
	if err != nil {
		return nil, err
	}
	index := messageIndex(conv)
	children := make([]Message, 0, len(parent.Children))
	for _, childID := range parent.Children {
		if child, ok := index[childID]; ok {
			children = append(children, *child)
		}
	}
	return children, nil
}

// AddChild appends a new message under parentID and returns its id. The
// first message of a conversation becomes the root and needs no parent.
// The parent's children list and the new message's ancestors are both
// maintained.
func AddChild(conv *Conversation, msg Message, parentID string) (string, error) {
	now := time.Now()
	msg.ID = uuid.NewString()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	if len(conv.Messages) == 0 {
		msg.Ancestors = nil
		msg.Children = nil
		conv.RootMessageID = msg.ID
		conv.Messages = append(conv.Messages, msg)
		return msg.ID, nil
	}

	if parentID == "" {
		return "", &domain.ValidationError{Message: "a parent is required when the conversation is not empty"}
	}
	if conv.RootMessageID == "" {
		return "", &domain.ValidationError{Message: "legacy conversation must be converted before branching"}
	}

	parent, err := FindMessage(conv, parentID)
	if err != nil {
		return "", err
	}

	msg.Ancestors = append(append([]string{}, parent.Ancestors...), parentID)
	msg.Children = nil
	parent.Children = append(parent.Children, msg.ID)
	conv.Messages = append(conv.Messages, msg)
	return msg.ID, nil
}

// AddSibling creates a new branch next to siblingID: the new message
// shares the sibling's parent. Used by edit and retry; the original
// message is never mutated or removed.
func AddSibling(conv *Conversation, msg Message, siblingID string) (string, error) {
	if len(conv.Messages) == 0 {
		return "", &domain.ValidationError{Message: "cannot add a sibling to an empty conversation"}
	}
	if conv.RootMessageID == "" {
		return "", &domain.ValidationError{Message: "cannot add a sibling to a legacy conversation"}
	}

	sibling, err := FindMessage(conv, siblingID)
	if err != nil {
		return "", err
	}
	if len(sibling.Ancestors) == 0 {
		return "", &domain.ValidationError{Message: "cannot add a sibling to the root message"}
	}

	return AddChild(conv, msg, sibling.Ancestors[len(sibling.Ancestors)-1])
}

// ConvertLegacyConversation migrates a flat ordered message array into the
// tree shape by synthesizing a linear chain. Applying it to an
// already-tree-shaped conversation is a no-op.
func ConvertLegacyConversation(conv *Conversation) {
	if conv.RootMessageID != "" || len(conv.Messages) == 0 {
		return
	}

	ids := make([]string, len(conv.Messages))
	for i := range conv.Messages {
		if conv.Messages[i].ID == "" {
			conv.Messages[i].ID = uuid.NewString()
		}
		ids[i] = conv.Messages[i].ID
	}

	for i := range conv.Messages {
		conv.Messages[i].Ancestors = append([]string{}, ids[:i]...)
		if i+1 < len(conv.Messages) {
			conv.Messages[i].Children = []string{ids[i+1]}
		} else {
			conv.Messages[i].Children = nil
		}
	}
	conv.RootMessageID = ids[0]
}

// RemoveBranch deletes the message and every descendant naming it as an
// ancestor. Returns the ids removed. Grandchildren are deleted, not
// reparented.
func RemoveBranch(conv *Conversation, id string) ([]string, error) {
	if _, err := FindMessage(conv, id); err != nil {
		return nil, err
	}

	removed := map[string]bool{id: true}
	kept := conv.Messages[:0:0]
	for _, msg := range conv.Messages {
		drop := msg.ID == id
		for _, ancestorID := range msg.Ancestors {
			if ancestorID == id {
				drop = true
				break
			}
		}
		if drop {
			removed[msg.ID] = true
		} else {
			kept = append(kept, msg)
		}
	}

	// prune dangling child references
	for i := range kept {
		children := kept[i].Children[:0:0]
		for _, childID := range kept[i].Children {
			if !removed[childID] {
				children = append(children, childID)
			}
		}
		kept[i].Children = children
	}
	conv.Messages = kept

	if removed[conv.RootMessageID] {
		conv.RootMessageID = ""
	}

	ids := make([]string, 0, len(removed))
	for rid := range removed {
		ids = append(ids, rid)
	}
	return ids, nil
}

func messageIndex(conv *Conversation) map[string]*Message {
	index := make(map[string]*Message, len(conv.Messages))
	for i := range conv.Messages {
		index[conv.Messages[i].ID] = &conv.Messages[i]
	}
	return index
}
