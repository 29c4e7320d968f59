package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailer_SendVerificationEmail(t *testing.T) {
	client := &fakeSES{}
	mailer := newSESMailer(client, "no-reply@example.com", testLogger())
	expires := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)

	err := mailer.SendVerificationEmail(context.Background(), testEmail, "https://x.test/verify?token=abc", expires)
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "no-reply@example.com", aws.ToString(client.input.Source))
	assert.Equal(t, []string{testEmail}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Verify your email address", aws.ToString(client.input.Message.Subject.Data))

	text := aws.ToString(client.input.Message.Body.Text.Data)
	assert.Contains(t, text, "https://x.test/verify?token=abc")
	assert.Contains(t, text, "2026-01-02 15:04 UTC")
	assert.True(t, strings.Contains(aws.ToString(client.input.Message.Body.Html.Data), `href="https://x.test/verify?token=abc"`))
}

func TestSESMailer_Error(t *testing.T) {
	mailer := newSESMailer(&fakeSES{err: errors.New("MessageRejected")}, "no-reply@example.com", testLogger())

	err := mailer.SendVerificationEmail(context.Background(), testEmail, "https://x.test", time.Now())
	assert.ErrorContains(t, err, "MessageRejected")
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer(testLogger()).SendVerificationEmail(context.Background(), testEmail, "https://x.test", time.Now()))
}

func TestNicknameGenerator(t *testing.T) {
	gen := NewNicknameGenerator()
	for i := 0; i < 20; i++ {
		name := gen.Generate()
		assert.NoError(t, ValidateNickname(name), name)
		assert.Len(t, strings.Split(name, "_"), 3)
	}
}

func TestValidateNickname(t *testing.T) {
	assert.NoError(t, ValidateNickname("bold-lynx_42"))
	assert.Error(t, ValidateNickname("ab"))
	assert.Error(t, ValidateNickname("has space"))
	assert.Error(t, ValidateNickname("emoji🙂"))
}
