package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// PromptRole names one system prompt used by the engine.
type PromptRole string

const (
	PromptRouter   PromptRole = "router"
	PromptAnswer   PromptRole = "answer"
	PromptResearch PromptRole = "research"
	PromptPlanner  PromptRole = "planner"
	PromptWriter   PromptRole = "writer"
	PromptCritic   PromptRole = "critic"
	PromptPolisher PromptRole = "polisher"
)

var defaultPrompts = map[PromptRole]string{
	PromptRouter: `You are an orchestrator that determines if a user's request is:
1. A general question that can be answered directly (yes)
2. A complex content creation task requiring research and planning (no)

Examples of general questions:
- "What is Python?"
- "Explain machine learning"
- "How does HTTP work?"

Examples of complex tasks:
- "Write a blog post about..."
- "Create a comprehensive guide on..."
- "Research and draft an article about..."

Respond with only "yes" for general questions or "no" for complex tasks.`,

	PromptAnswer: `You are a helpful AI assistant.
Answer the user's question clearly and concisely.`,

	PromptResearch: `You are a research analyst. Based on the user's request,
identify key topics to research and generate search queries.
Provide 2-3 specific search queries, one per line, with no other text.`,

	PromptPlanner: `You are a content strategist. Based on the research data,
create a detailed content plan with NUMBERED STEPS.

Format your plan as:
STEP 1: [Title/Topic]
- Key points to cover
- Approach

STEP 2: [Title/Topic]
- Key points to cover
- Approach

(Continue with all steps...)

Make each step a clear, independent unit of work.`,

	PromptWriter: `You are an expert content writer.
Write ONLY the content for the CURRENT STEP of the plan.
Do not write other steps - focus on this specific section.
Make it engaging, well-structured, and informative.`,

	PromptCritic: `You are a critical editor reviewing step-by-step content.

Provide:
1. Strengths of this section
2. Areas for improvement
3. Specific suggestions
4. Quality assessment (Approve/Needs Revision)`,

	PromptPolisher: `You are a final editor. Polish the approved draft:
1. Fix any remaining issues
2. Enhance clarity and flow
3. Ensure professional formatting
4. Add finishing touches`,
}

// identityFile, when present in the prompts directory, is prepended to every
// role prompt.
const identityFile = "identity.md"

// PromptManager serves system prompts. A file named <role>.md in Directory
// replaces the built-in prompt for that role.
type PromptManager struct {
	Directory string

	mu    sync.RWMutex
	cache map[PromptRole]string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir, cache: make(map[PromptRole]string)}
}

// Get returns the prompt for role.
func (pm *PromptManager) Get(role PromptRole) (string, error) {
	if pm == nil || pm.Directory == "" {
		return builtinPrompt(role)
	}

	pm.mu.RLock()
	p, ok := pm.cache[role]
	pm.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := pm.readOrDefault(string(role)+".md", func() (string, error) { return builtinPrompt(role) })
	if err != nil {
		return "", err
	}
	identity, err := pm.readOrDefault(identityFile, func() (string, error) { return "", nil })
	if err != nil {
		return "", err
	}
	if identity != "" {
		p = identity + "\n\n" + p
	}

	pm.mu.Lock()
	pm.cache[role] = p
	pm.mu.Unlock()
	return p, nil
}

// Invalidate drops cached overrides so the next Get rereads the directory.
func (pm *PromptManager) Invalidate() {
	pm.mu.Lock()
	pm.cache = make(map[PromptRole]string)
	pm.mu.Unlock()
}

// Watch invalidates the cache whenever a file in Directory changes. It
// blocks until ctx is done.
func (pm *PromptManager) Watch(ctx context.Context) error {
	if pm.Directory == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompt watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(pm.Directory); err != nil {
		return fmt.Errorf("failed to watch %s: %w", pm.Directory, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasSuffix(evt.Name, ".md") {
				pm.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("prompt watcher: %w", err)
		}
	}
}

func (pm *PromptManager) readOrDefault(name string, fallback func() (string, error)) (string, error) {
	data, err := os.ReadFile(filepath.Join(pm.Directory, name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fallback()
	case err != nil:
		return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func builtinPrompt(role PromptRole) (string, error) {
	p, ok := defaultPrompts[role]
	if !ok {
		return "", fmt.Errorf("unknown prompt role %q", role)
	}
	return p, nil
}
