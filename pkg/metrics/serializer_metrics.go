// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	serializerMetricSubsystem = "serializer"
)

var (
	SerializerEncodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: vserialNamespace,
			Subsystem: serializerMetricSubsystem,
			Name:      "encode_total",
			Help:      "编码调用次数",
		}, []string{formatLabelName, resultLabelName})

	SerializerDecodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: vserialNamespace,
			Subsystem: serializerMetricSubsystem,
			Name:      "decode_total",
			Help:      "解码调用次数",
		}, []string{formatLabelName, resultLabelName})

	SerializerErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: vserialNamespace,
			Subsystem: serializerMetricSubsystem,
			Name:      "error_total",
			Help:      "按错误种类统计的失败次数",
		}, []string{formatLabelName, kindLabelName})

	SerializerEncodedBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: vserialNamespace,
			Subsystem: serializerMetricSubsystem,
			Name:      "encoded_bytes",
			Help:      "单次编码产出的字节数",
			Buckets:   sizeBuckets,
		}, []string{formatLabelName})

	SerializerAnchorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: vserialNamespace,
			Subsystem: serializerMetricSubsystem,
			Name:      "anchors_total",
			Help:      "编码时写出的锚点数量",
		}, []string{formatLabelName})

	SerializerConfigUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: vserialNamespace,
			Subsystem: serializerMetricSubsystem,
			Name:      "config_updates_total",
			Help:      "成功提交的配置批量更新次数",
		})
)

func registerSerializer(r prometheus.Registerer) {
	r.MustRegister(SerializerEncodeTotal)
	r.MustRegister(SerializerDecodeTotal)
	r.MustRegister(SerializerErrorTotal)
	r.MustRegister(SerializerEncodedBytes)
	r.MustRegister(SerializerAnchorsTotal)
	r.MustRegister(SerializerConfigUpdatesTotal)
}

// ObserveEncode 记录一次编码结果。
func ObserveEncode(format string, size int, anchors int, kind string, err error) {
	if err != nil {
		SerializerEncodeTotal.WithLabelValues(format, FailLabel).Inc()
		SerializerErrorTotal.WithLabelValues(format, kind).Inc()
		return
	}
	SerializerEncodeTotal.WithLabelValues(format, SuccessLabel).Inc()
	SerializerEncodedBytes.WithLabelValues(format).Observe(float64(size))
	if anchors > 0 {
		SerializerAnchorsTotal.WithLabelValues(format).Add(float64(anchors))
	}
}

// ObserveDecode 记录一次解码结果。
func ObserveDecode(format string, kind string, err error) {
	if err != nil {
		SerializerDecodeTotal.WithLabelValues(format, FailLabel).Inc()
		SerializerErrorTotal.WithLabelValues(format, kind).Inc()
		return
	}
	SerializerDecodeTotal.WithLabelValues(format, SuccessLabel).Inc()
}
