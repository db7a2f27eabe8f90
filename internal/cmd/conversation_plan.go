package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/x/exp/ordered"

	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/storage"
)

type conversationPlan struct {
	WriteID string
	Title   string
	ReadID  string
	API     string
	Model   string
}

// planConversation decides which conversation a turn reads and which one it
// writes, from --continue, --continue-last and --title.
func planConversation(cfg *config.Config, db *storage.DB) (conversationPlan, error) {
	continueLast := cfg.ContinueLast || (cfg.Continue != "" && cfg.Title == "")
	readID := cfg.Continue
	writeID := ordered.First(cfg.Title, cfg.Continue)
	title := writeID
	model := cfg.Model
	api := cfg.API

	if readID != "" || continueLast {
		found, err := findConversation(db, readID, true)
		if err != nil {
			return conversationPlan{}, errs.Wrap(err, "Could not find the conversation.")
		}
		readID = found.ID
		if found.Model != "" && found.API != "" {
			model = found.Model
			api = found.API
		}
	}

	// continuing without a new title updates the conversation read from
	if continueLast {
		writeID = readID
	}

	if writeID == "" {
		writeID = storage.NewConversationID()
	}

	if !storage.SHA1Regexp.MatchString(writeID) {
		convo, err := db.Find(writeID)
		if err != nil {
			// a new conversation with a title
			writeID = storage.NewConversationID()
		} else {
			writeID = convo.ID
		}
	}

	return conversationPlan{
		WriteID: writeID,
		Title:   title,
		ReadID:  readID,
		API:     api,
		Model:   model,
	}, nil
}

// findConversation resolves in by id prefix or title. With orHEAD, an input
// matching nothing resolves to the most recent conversation.
func findConversation(db *storage.DB, in string, orHEAD bool) (*storage.Conversation, error) {
	if in == "" && orHEAD {
		convo, err := db.FindHEAD()
		if err != nil {
			return nil, fmt.Errorf("find latest conversation: %w", err)
		}
		return convo, nil
	}
	convo, err := db.Find(in)
	if err == nil {
		return convo, nil
	}
	if errors.Is(err, storage.ErrNoMatches) && orHEAD {
		convo, err := db.FindHEAD()
		if err != nil {
			return nil, fmt.Errorf("find latest conversation: %w", err)
		}
		return convo, nil
	}
	return nil, fmt.Errorf("find conversation: %w", err)
}
