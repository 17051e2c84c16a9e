package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"mpscraper/pkg/config"
	"mpscraper/pkg/logger"
	"mpscraper/pkg/models"
)

type MockAMQPChannel struct {
	mock.Mock
}

func (m *MockAMQPChannel) PublishWithContext(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockAMQPChannel) Close() error {
	return m.Called().Error(0)
}

func newTestPublisher(ch *MockAMQPChannel) *RabbitPublisher {
	cfg := config.DefaultConfig().Events
	p := newRabbitPublisher(nil, ch, cfg, logger.NewNopLogger())
	p.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return p
}

func testArticle() *models.Article {
	return &models.Article{
		AccountName:  "Daily Tech",
		Title:        "Weekly Notes",
		URL:          "https://mp.weixin.qq.com/s/abc",
		PublishEpoch: 1700000000,
		Content:      "# long body",
		Images:       []string{"https://img/1.png"},
	}
}

func TestPublishArticleHarvested(t *testing.T) {
	ch := &MockAMQPChannel{}
	pub := newTestPublisher(ch)

	var captured amqp.Publishing
	ch.On("PublishWithContext",
		mock.Anything,
		"mpscraper",
		EventArticleHarvested,
		false,
		false,
		mock.AnythingOfType("amqp091.Publishing"),
	).Return(nil).Run(func(args mock.Arguments) {
		captured = args.Get(5).(amqp.Publishing)
	})

	err := pub.PublishArticleHarvested(context.Background(), testArticle(), "/out/Daily_Tech/x")
	require.NoError(t, err)
	ch.AssertExpectations(t)

	assert.Equal(t, amqp.Persistent, captured.DeliveryMode)
	assert.Equal(t, "application/json", captured.ContentType)
	assert.Equal(t, "https://mp.weixin.qq.com/s/abc", captured.MessageId)

	var msg HarvestedMessage
	require.NoError(t, json.Unmarshal(captured.Body, &msg))
	assert.Equal(t, EventArticleHarvested, msg.Event)
	assert.Equal(t, "Weekly Notes", msg.Article.Title)
	assert.Equal(t, "/out/Daily_Tech/x", msg.LocalDir)
	assert.True(t, msg.HasContent)
	assert.True(t, msg.Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.NotContains(t, string(captured.Body), "long body")
}

func TestPublishArticleHarvestedErrorBubbles(t *testing.T) {
	ch := &MockAMQPChannel{}
	pub := newTestPublisher(ch)

	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, false, false, mock.Anything).
		Return(errors.New("channel closed"))

	err := pub.PublishArticleHarvested(context.Background(), testArticle(), "")
	assert.EqualError(t, err, "channel closed")
}

func TestRabbitPublisherClose(t *testing.T) {
	ch := &MockAMQPChannel{}
	ch.On("Close").Return(nil).Once()

	assert.NoError(t, newTestPublisher(ch).Close())
	ch.AssertExpectations(t)
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishArticleHarvested(context.Background(), testArticle(), ""))
	assert.NoError(t, p.Close())
}
