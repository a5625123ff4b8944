// 包 application 预测模块应用层：历史聚合、预测生成、准确率回填与查询
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/metrics"
)

// Options 应用服务的公共依赖
type Options struct {
	// 所有日期/小时都在该时区下计算
	Location *time.Location
	// 时钟，测试中注入
	Now     func() time.Time
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) now() time.Time {
	return o.Now().In(o.Location)
}

// publishEvent 尽力发布，失败只记日志
func publishEvent(ctx context.Context, publisher domain.EventPublisher, logger *slog.Logger, event domain.ForecastEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "event", event.EventType(), "error", err)
	}
}
