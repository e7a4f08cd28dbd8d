// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 VoxFlow 服务的全局共享类型定义。

# 概述

types 是服务最底层的公共包，不依赖任何内部包，为 voice、llm、
api 等上层模块提供统一的类型契约。跨包共享的枚举、错误码均定义
于此，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable 标记
  - Role              — 调用方角色（user / agent / admin / super_admin）
  - RolePermissions   — 角色到权限描述的数据表，路由 preamble 与鉴权共用
  - Identity          — 会话激活前解析一次的调用方身份
*/
package types
