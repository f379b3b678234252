package mailer

import (
	"context"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vetting-core/internal/common"
	"github.com/ternarybob/vetting-core/internal/interfaces"
)

type fakeMailerKV struct {
	values map[string]string
}

func newFakeMailerKV() *fakeMailerKV {
	return &fakeMailerKV{values: make(map[string]string)}
}

func (f *fakeMailerKV) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return v, nil
}
func (f *fakeMailerKV) GetPair(ctx context.Context, key string) (*interfaces.KeyValuePair, error) {
	return nil, nil
}
func (f *fakeMailerKV) Set(ctx context.Context, key, value, description string) error {
	f.values[key] = value
	return nil
}
func (f *fakeMailerKV) Upsert(ctx context.Context, key, value, description string) (bool, error) {
	return true, nil
}
func (f *fakeMailerKV) Delete(ctx context.Context, key string) error { delete(f.values, key); return nil }
func (f *fakeMailerKV) DeleteAll(ctx context.Context) error          { return nil }
func (f *fakeMailerKV) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	return nil, nil
}
func (f *fakeMailerKV) GetAll(ctx context.Context) (map[string]string, error) { return nil, nil }
func (f *fakeMailerKV) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	return nil, nil
}

var _ interfaces.KeyValueStorage = (*fakeMailerKV)(nil)

func TestGetConfig_LayersKVCredentialsOverStaticConfig(t *testing.T) {
	kv := newFakeMailerKV()
	kv.values["smtp_username"] = "bot@example.com"
	kv.values["smtp_password"] = "secret"
	svc := NewService(common.MailConfig{SMTPHost: "smtp.example.com", From: "noreply@example.com"}, kv, arbor.NewLogger())

	cfg, err := svc.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", cfg.Host)
	assert.Equal(t, "bot@example.com", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 587, cfg.Port)
}

func TestGetConfig_KVHostOverridesStaticHost(t *testing.T) {
	kv := newFakeMailerKV()
	kv.values["smtp_host"] = "override.example.com"
	svc := NewService(common.MailConfig{SMTPHost: "smtp.example.com"}, kv, arbor.NewLogger())

	cfg, err := svc.GetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "override.example.com", cfg.Host)
}

func TestIsConfigured_FalseWithoutCredentials(t *testing.T) {
	svc := NewService(common.MailConfig{SMTPHost: "smtp.example.com"}, newFakeMailerKV(), arbor.NewLogger())
	assert.False(t, svc.IsConfigured(context.Background()))
}

func TestIsConfigured_TrueWithAllRequiredFields(t *testing.T) {
	kv := newFakeMailerKV()
	kv.values["smtp_username"] = "bot@example.com"
	kv.values["smtp_password"] = "secret"
	svc := NewService(common.MailConfig{SMTPHost: "smtp.example.com", From: "noreply@example.com"}, kv, arbor.NewLogger())
	assert.True(t, svc.IsConfigured(context.Background()))
}

func TestSend_RejectsWhenHostNotConfigured(t *testing.T) {
	svc := NewService(common.MailConfig{}, newFakeMailerKV(), arbor.NewLogger())
	_, err := svc.Send(context.Background(), []string{"a@example.com"}, nil, nil, "subj", "body", "")
	assert.Error(t, err)
}

func TestSend_RejectsWithoutRecipients(t *testing.T) {
	kv := newFakeMailerKV()
	kv.values["smtp_username"] = "bot@example.com"
	kv.values["smtp_password"] = "secret"
	svc := NewService(common.MailConfig{SMTPHost: "smtp.example.com", From: "noreply@example.com"}, kv, arbor.NewLogger())
	_, err := svc.Send(context.Background(), nil, nil, nil, "subj", "body", "")
	assert.Error(t, err)
}

func TestBuildMessage_MultipartWhenHTMLBodyPresent(t *testing.T) {
	cfg := &Config{From: "noreply@example.com", FromName: "Vetting Core"}
	msg := buildMessage(cfg, []string{"a@example.com"}, nil, "Subject Line", "<p>hi</p>", "hi")
	assert.Contains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "Subject: Subject Line")
}

func TestBuildMessage_PlainTextWhenNoHTMLBody(t *testing.T) {
	cfg := &Config{From: "noreply@example.com", FromName: "Vetting Core"}
	msg := buildMessage(cfg, []string{"a@example.com"}, nil, "Subject Line", "", "plain text body")
	assert.NotContains(t, msg, "multipart/alternative")
	assert.Contains(t, msg, "plain text body")
}

func TestBuildMessage_IncludesCCAndReplyToWhenSet(t *testing.T) {
	cfg := &Config{From: "noreply@example.com", FromName: "Vetting Core", ReplyTo: "reply@example.com"}
	msg := buildMessage(cfg, []string{"a@example.com"}, []string{"b@example.com"}, "Subject", "", "body")
	assert.Contains(t, msg, "Cc: b@example.com")
	assert.Contains(t, msg, "Reply-To: reply@example.com")
}

func TestIsPermanentSMTPError_True5xxFalse4xx(t *testing.T) {
	assert.True(t, isPermanentSMTPError(&textproto.Error{Code: 550, Msg: "mailbox unavailable"}))
	assert.False(t, isPermanentSMTPError(&textproto.Error{Code: 421, Msg: "service not available"}))
}

func TestIsPermanentSMTPError_FalseForNonProtocolError(t *testing.T) {
	assert.False(t, isPermanentSMTPError(assert.AnError))
}

func TestEncodeBase64WithLineBreaks_Wraps76Chars(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	got := encodeBase64WithLineBreaks(string(long))
	for _, line := range splitCRLF(got) {
		assert.LessOrEqual(t, len(line), 76)
	}
}

func splitCRLF(s string) []string {
	var lines []string
	start := 0
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '\r' && s[i+1] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 2
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func TestGenerateBoundary_ProducesUniqueValues(t *testing.T) {
	a := generateBoundary()
	b := generateBoundary()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "vetting_")
}
