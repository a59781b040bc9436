package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/muzlabs/muzgpt/internal/store"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	chatModelName = "gemini-flash-latest"

	simulationSuffix = "\n\n---\n[NEURAL STATUS: SIMULATION MODE // Add GEMINI_API_KEY for full intelligence]"

	invalidKeyFragment = "\n\n[System ERROR: The API key provided is INVALID. Please configure a fresh key from https://aistudio.google.com/]"

	demoThinkDelay = 800 * time.Millisecond
	demoWordDelay  = 40 * time.Millisecond
)

// Canned replies keep the service demonstrable without live credentials.
var demoResponses = map[Mode][]string{
	ModeGeneral: {
		"MUZGPT Neural Sync: I'm currently running on local backup compute. My full intelligence requires an active GEMINI_API_KEY. However, I can still guide you through my features!",
		"Searching local clusters... It seems the primary neural link is offline. To enable my real-time adaptive thinking, please configure a Gemini API key. What can I help you with in the meantime?",
		"System Update: I've detected a placeholder API key. I'm MUZGPT, and once you connect my full brain via AI Studio, I'll be able to solve complex problems, write code, and more. Try asking about my 'Student' or 'Startup' modes!",
	},
	ModeStudent: {
		"Student Mode (Simulated): Quantum mechanics is easier than it looks! I can help you break down any subject. Note: To get real-time explanations, please activate my neural link by adding an API key.",
		"Hey! Learning is a journey. I'm currently in 'Lite' mode. Once my API key is linked, I can generate full study plans and memory hacks tailored specifically to you.",
	},
	ModeGame: {
		"QUEST ACCEPTED! You just earned +100 XP for exploring the interface. To turn your real tasks into level-ups, I need my full neural link (API KEY) active. Ready to quest?",
		"HYPE! You're leveling up fast. I'm MUZGPT (Game Mode). I turn every chat into an adventure. Add the API key to unlock my full quest engine!",
	},
	ModeStartup: {
		"Founder Insights: Every great MVP starts with a solid foundation. You've built the UI, now let's activate the brain. Add your GEMINI_API_KEY to see how I can analyze your market fit in real-time.",
		"Strategic Simulation: I'm ready to brainstorm your next big thing. While we wait for the neural link (API Key) to stabilize, what industry are you disrupting today?",
	},
}

// Relay turns a prompt into an incremental sequence of text fragments. With a
// configured API key it streams from Gemini; without one it replays a canned
// response for the mode with live-like pacing. Generation failures are
// delivered in-band as a final diagnostic fragment, never as an error: a turn
// always completes from the caller's perspective.
type Relay struct {
	client     *genai.Client
	thinkDelay time.Duration
	wordDelay  time.Duration
}

// NewRelay builds a relay. An empty or placeholder apiKey selects simulation
// mode.
func NewRelay(ctx context.Context, apiKey string) (*Relay, error) {
	r := &Relay{thinkDelay: demoThinkDelay, wordDelay: demoWordDelay}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == "PLACEHOLDER_API_KEY" || len(apiKey) < 10 {
		return r, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	r.client = client
	return r, nil
}

// NewSimRelay returns a relay pinned to simulation mode with custom pacing.
func NewSimRelay(thinkDelay, wordDelay time.Duration) *Relay {
	return &Relay{thinkDelay: thinkDelay, wordDelay: wordDelay}
}

func (r *Relay) Close() {
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

// Live reports whether the relay talks to the real generation backend.
func (r *Relay) Live() bool {
	return r.client != nil
}

// Stream delivers the response to prompt fragment by fragment, in arrival
// order, via onChunk. History is passed as-is; tier-based truncation is the
// caller's policy.
func (r *Relay) Stream(ctx context.Context, mode Mode, prompt string, history []store.Message, onChunk func(string)) error {
	if r.client == nil {
		return r.streamDemo(ctx, mode, prompt, onChunk)
	}

	model := r.client.GenerativeModel(chatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstructions[mode])},
	}
	model.SetTemperature(0.7)

	session := model.StartChat()
	for _, msg := range history {
		session.History = append(session.History, &genai.Content{
			Role:  msg.Sender,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	iter := session.SendMessageStream(ctx, genai.Text(prompt))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Gemini stream error: %v", err)
			onChunk(failureFragment(err))
			return nil
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if txt, ok := part.(genai.Text); ok && len(txt) > 0 {
					onChunk(string(txt))
				}
			}
		}
	}
	return nil
}

// failureFragment translates an upstream failure into the in-band diagnostic
// text shown at the end of the turn, distinguishing a rejected credential
// from everything else.
func failureFragment(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "API_KEY_INVALID") || strings.Contains(msg, "not valid") {
		return invalidKeyFragment
	}
	return "\n\n[Neural Link Error: " + msg + "]"
}

func (r *Relay) streamDemo(ctx context.Context, mode Mode, prompt string, onChunk func(string)) error {
	responses, ok := demoResponses[mode]
	if !ok {
		responses = demoResponses[ModeGeneral]
	}
	base := responses[demoPick(prompt, len(responses))]

	if err := sleepCtx(ctx, r.thinkDelay); err != nil {
		return err
	}

	words := strings.Split(base, " ")
	for _, word := range words {
		onChunk(word + " ")
		if err := sleepCtx(ctx, r.wordDelay); err != nil {
			return err
		}
	}
	onChunk(simulationSuffix)
	return nil
}

// demoPick selects a canned response deterministically from the prompt so a
// given input always replays the same way.
func demoPick(prompt string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return int(h.Sum32() % uint32(n))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
