// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 VoxFlow 服务端程序入口。

# 概述

cmd/voxflow 是 VoxFlow 语音编排服务的可执行入口，提供 REST API、
语音 WebSocket、健康检查和版本查询等子命令。程序支持 YAML 配置文件
加载（VOXFLOW_ 前缀环境变量覆盖）、结构化日志（zap）以及
Prometheus 指标采集。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    MetricsMiddleware、CORS、RateLimiter（基于 IP）、JWTAuth（HS256 Bearer）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 释放 Redis 连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
