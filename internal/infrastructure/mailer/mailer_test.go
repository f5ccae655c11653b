package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/arqon/siteapi/internal/domain/entities"
	"github.com/arqon/siteapi/internal/infrastructure/config"
	"github.com/arqon/siteapi/internal/infrastructure/logger"
)

type recordingSender struct {
	sent      []*mail.Msg
	sendErr   error
	verifyErr error
}

func (r *recordingSender) Verify(ctx context.Context) error {
	return r.verifyErr
}

func (r *recordingSender) Send(ctx context.Context, msg *mail.Msg) error {
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testSMTPConfig() config.SMTPConfig {
	return config.SMTPConfig{
		Host:      "smtp.example.com",
		Port:      587,
		User:      "site@example.com",
		Recipient: "contato@example.com",
		CC:        "socio@example.com, obra@example.com",
	}
}

func testSubmission() entities.ContactSubmission {
	return entities.ContactSubmission{
		Name:        "João Silva",
		Email:       "joao@example.com",
		Phone:       "(11) 99999-9999",
		Message:     "Preciso de um orçamento para um projeto residencial.",
		IP:          "203.0.113.7",
		UserAgent:   "Mozilla/5.0",
		SubmittedAt: time.Date(2024, 5, 12, 14, 30, 0, 0, time.UTC),
	}
}

func TestNotifySendsToRecipientAndCC(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, testSMTPConfig())

	id, err := n.Notify(context.Background(), testSubmission())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NotContains(t, id, "<")

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]

	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"contato@example.com", "socio@example.com", "obra@example.com"}, rcpts)

	subject := msg.GetGenHeader(mail.HeaderSubject)
	require.Len(t, subject, 1)
	assert.Contains(t, subject[0], "João Silva")
}

func TestNotifyPropagatesSendFailure(t *testing.T) {
	sender := &recordingSender{sendErr: errors.New("421 service not available")}
	n := NewNotifier(sender, testSMTPConfig())

	_, err := n.Notify(context.Background(), testSubmission())
	assert.Error(t, err)
}

func TestConfirmGoesToSubmitter(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, testSMTPConfig())

	require.NoError(t, n.Confirm(context.Background(), testSubmission()))
	require.Len(t, sender.sent, 1)

	rcpts, err := sender.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"joao@example.com"}, rcpts)
}

func TestNotificationRejectsBadSender(t *testing.T) {
	cfg := testSMTPConfig()
	cfg.User = ""
	n := NewNotifier(&recordingSender{}, cfg)

	_, err := n.NotificationMessage(testSubmission())
	assert.Error(t, err)
}

func TestHTMLBodyEscapesSubmissionFields(t *testing.T) {
	n := NewNotifier(&recordingSender{}, testSMTPConfig())
	n.location = time.UTC
	sub := testSubmission()
	sub.Message = `<b onclick="x">oi</b>`
	sub.UserAgent = `<script>ua</script>`

	var htmlBuf, textBuf bytes.Buffer
	data := n.templateData(sub)
	require.NoError(t, n.notifyHTML.Execute(&htmlBuf, data))
	require.NoError(t, n.notifyText.Execute(&textBuf, data))

	assert.NotContains(t, htmlBuf.String(), "<script>ua")
	assert.Contains(t, htmlBuf.String(), "&lt;script&gt;ua")
	assert.Contains(t, htmlBuf.String(), "203.0.113.7")
	assert.Contains(t, textBuf.String(), `<b onclick="x">oi</b>`)
	assert.Contains(t, textBuf.String(), "12/05/2024")
}

func TestTemplateDataDefaultsTimestamp(t *testing.T) {
	n := NewNotifier(&recordingSender{}, testSMTPConfig())
	sub := testSubmission()
	sub.SubmittedAt = time.Time{}

	assert.NotEmpty(t, n.templateData(sub).Timestamp)
}

func TestNewSMTPTransportRequiresHost(t *testing.T) {
	_, err := NewSMTPTransport(config.SMTPConfig{}, logger.NewNop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewSMTPTransportFillsPool(t *testing.T) {
	cfg := testSMTPConfig()
	cfg.MaxConnections = 3
	cfg.Timeout = time.Second

	tr, err := NewSMTPTransport(cfg, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, len(tr.pool))
	assert.NoError(t, tr.Close())
	assert.Equal(t, 3, len(tr.pool))
}

func TestSendHonoursContextWhilePoolIsBusy(t *testing.T) {
	cfg := testSMTPConfig()
	cfg.MaxConnections = 1

	tr, err := NewSMTPTransport(cfg, logger.NewNop())
	require.NoError(t, err)
	<-tr.pool

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = tr.Send(ctx, mail.NewMsg())
	assert.ErrorIs(t, err, context.Canceled)
}
