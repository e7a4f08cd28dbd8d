// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 voice 实现语音会话的核心编排: 会话状态机、进程内注册表、
Redis 上下文存储，以及把转写、缓存、路由、合成串成回合的编排器。

# 生命周期

CONNECTING → ACTIVE → CLOSING → CLOSED。身份在进入 ACTIVE 前
解析一次。回合级错误（模型调用、合成失败）通过 error 消息下发，
会话保持 ACTIVE；传输层和转写流的致命错误进入 CLOSING。

# 回合流水线

每个最终转写触发: 语义缓存查询 → (未命中) 路由补全 → TTS 合成
→ 二进制音频下发 → 追加回合（FIFO 截断，默认保留 10 轮）→
持久化上下文（session:<id>，TTL 每次刷新）→ 回填语义缓存。

# 并发约束

注册表不变量: 移除会话同时从其用户集合移除，空集合立即删除；
每用户并发会话数默认上限 3，超限连接在 ACTIVE 前拒绝。
*/
package voice
