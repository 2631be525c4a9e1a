package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/prospector/internal/research"
	"github.com/sells-group/prospector/pkg/perplexity"
	"github.com/sells-group/prospector/pkg/salesforce"
)

// --- Perplexity Mock ---

type mockPerplexity struct {
	mock.Mock
}

func (m *mockPerplexity) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

func answer(text string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		ID: "cmpl-1",
		Choices: []perplexity.Choice{
			{Message: perplexity.Message{Role: "assistant", Content: text}},
		},
	}
}

// userPrompt matches a request whose user message contains substr.
func userPrompt(substr string) any {
	return mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		for _, m := range req.Messages {
			if m.Role == "user" && strings.Contains(m.Content, substr) {
				return true
			}
		}
		return false
	})
}

// --- Generation Executor Mock ---

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, role, prompt string) (json.RawMessage, error) {
	args := m.Called(ctx, role, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

// --- Researcher Mock ---

type mockResearcher struct {
	mock.Mock
}

func (m *mockResearcher) Run(ctx context.Context, subject, actor string) (*research.Outcome, error) {
	args := m.Called(ctx, subject, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*research.Outcome), args.Error(1)
}

// --- Notion Mock ---

type mockNotion struct {
	mock.Mock
}

func (m *mockNotion) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotion) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotion) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

// --- Salesforce Fake ---

// fakeSalesforce stores inserted records in memory and answers queries for
// them by object type.
type fakeSalesforce struct {
	mu       sync.Mutex
	inserts  map[string][]map[string]any
	updates  int
	queryErr error
	// insertErr fails inserts of the keyed object type.
	insertErr map[string]error
}

var _ salesforce.Client = (*fakeSalesforce)(nil)

func (f *fakeSalesforce) Query(_ context.Context, soql string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return f.queryErr
	}
	switch dst := out.(type) {
	case *[]salesforce.Account:
		for i, rec := range f.inserts["Account"] {
			if strings.Contains(soql, rec["Website"].(string)) {
				*dst = append(*dst, salesforce.Account{ID: accountID(i), Name: rec["Name"].(string)})
			}
		}
	case *[]salesforce.Contact:
		for i, rec := range f.inserts["Contact"] {
			if strings.Contains(soql, "'"+rec["LastName"].(string)+"'") && strings.Contains(soql, "'"+rec["AccountId"].(string)+"'") {
				*dst = append(*dst, salesforce.Contact{ID: contactID(i)})
			}
		}
	}
	return nil
}

func (f *fakeSalesforce) InsertOne(_ context.Context, obj string, record map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertErr[obj]; err != nil {
		return "", err
	}
	if f.inserts == nil {
		f.inserts = make(map[string][]map[string]any)
	}
	f.inserts[obj] = append(f.inserts[obj], record)
	n := len(f.inserts[obj]) - 1
	if obj == "Account" {
		return accountID(n), nil
	}
	return contactID(n), nil
}

func (f *fakeSalesforce) UpdateOne(context.Context, string, string, map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

func accountID(i int) string { return "001" + string(rune('A'+i)) }
func contactID(i int) string { return "003" + string(rune('A'+i)) }
