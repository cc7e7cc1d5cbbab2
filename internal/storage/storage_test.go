package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"resume-extractor/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm/logger"
)

func TestNewStorage_AllDisabled(t *testing.T) {
	s, err := NewStorage(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, s.MinIO)
	assert.Nil(t, s.RabbitMQ)
	assert.Nil(t, s.MySQL)
	assert.Nil(t, s.Redis)
	assert.Empty(t, s.InitErrors)
	assert.NoError(t, s.Close())
}

func TestNewStorage_NilConfig(t *testing.T) {
	_, err := NewStorage(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewStorage_MisconfiguredComponentsAreSkipped(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.Enabled = true    // 缺少地址
	cfg.RabbitMQ.Enabled = true // 缺少 URL
	cfg.MinIO.Enabled = true    // 缺少 endpoint

	s, err := NewStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, s.Redis)
	assert.Nil(t, s.RabbitMQ)
	assert.Nil(t, s.MinIO)
	assert.Equal(t, "minio,rabbitmq,redis", s.FailedComponents())
}

func TestStorage_FailedComponents(t *testing.T) {
	s := &Storage{InitErrors: map[string]error{"mysql": errors.New("x")}}
	assert.NoError(t, s.Close())
	assert.Equal(t, "mysql", s.FailedComponents())
}

func TestRedis_ResultKey(t *testing.T) {
	r := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	defer r.Close()
	assert.Equal(t, "resume-extractor:result:abc", r.ResultKey("abc"))

	r2 := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "x:")
	defer r2.Close()
	assert.Equal(t, "x:result:abc", r2.ResultKey("abc"))
}

func TestRedis_NilClient(t *testing.T) {
	r := &Redis{}
	_, _, err := r.GetCachedResult(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, r.SetCachedResult(context.Background(), "k", []byte("v"), time.Minute))
	assert.Error(t, r.Ping(context.Background()))
	assert.NoError(t, r.Close())
}

func TestNewRedisAdapter_Validation(t *testing.T) {
	_, err := NewRedisAdapter(nil)
	assert.Error(t, err)
	_, err = NewRedisAdapter(&config.RedisConfig{})
	assert.Error(t, err)
}

func TestMySQLHelpers(t *testing.T) {
	dsn := DSN(&config.MySQLConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Database: "resumes"})
	assert.Equal(t, "u:p@tcp(db:3306)/resumes?charset=utf8mb4&parseTime=True&loc=Local&timeout=10s", dsn)

	assert.Equal(t, logger.Silent, GormLogLevel(1))
	assert.Equal(t, logger.Info, GormLogLevel(4))
	assert.Equal(t, logger.Warn, GormLogLevel(0))

	assert.Equal(t, defaultHistoryLimit, ClampHistoryLimit(0))
	assert.Equal(t, 20, ClampHistoryLimit(20))
	assert.Equal(t, maxHistoryLimit, ClampHistoryLimit(100000))

	_, err := NewMySQL(nil)
	assert.Error(t, err)
}

func TestMinIOHelpers(t *testing.T) {
	assert.Equal(t, "batch/b1/0003/original.pdf", OriginalObjectKey("b1", 3, ".pdf"))
	assert.Equal(t, "batch/b1/0012/parsed_text.txt", TextObjectKey("b1", 12))
	assert.Equal(t, "application/pdf", ContentType(".PDF"))
	assert.Equal(t, "text/plain", ContentType(".txt"))
	assert.Equal(t, "application/octet-stream", ContentType(".docx"))

	_, err := NewMinIO(context.Background(), nil)
	assert.Error(t, err)
}

func TestMinIO_ArchiveFailureRecordedOnSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	defer otel.SetTracerProvider(prev)

	// 端口1上没有服务，上传必然失败
	client, err := minio.New("127.0.0.1:1", &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)
	m := &MinIO{client: client, originalBucket: defaultOriginalsBucket, parsedBucket: defaultParsedTextBucket}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, _, err = m.ArchiveOriginal(ctx, "b1", 0, "cv.pdf", []byte("%PDF-1.4"))
	assert.Error(t, err)
	_, err = m.ArchiveText(ctx, "b1", 0, "张三")
	assert.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "MinIO.ArchiveOriginal", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("object_store.key", "batch/b1/0000/original.pdf"))
	for _, s := range spans {
		assert.Equal(t, codes.Error, s.Status().Code)
		assert.Contains(t, s.Attributes(), attribute.String("error.type", "object_store"))
	}
}

func TestNewRabbitMQ_Validation(t *testing.T) {
	_, err := NewRabbitMQ(nil)
	assert.Error(t, err)
	_, err = NewRabbitMQ(&config.RabbitMQConfig{})
	assert.Error(t, err)
}
