// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、会话、对话轮次、LLM、语音与缓存六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 会话指标：启动/结束/拒绝计数与活跃会话 Gauge，
    按 role/outcome/reason 分组。
  - 轮次指标：对话轮次总数与端到端耗时，按 provider/status 分组。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion）、
    调用成本，按 provider/model 分组。
  - 语音指标：转写话语计数、TTS 请求计数与耗时、音频上下行字节数。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
*/
package metrics
