// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 router 根据查询特征在多个 LLM 提供者间选择路由，并在调用前
拼装带身份与会话历史的 system preamble。

# 选择规则（按序）

 1. 查询含代码关键词（code/script/fonction/class，词边界匹配）→ claude-haiku
 2. 查询超过 500 词 → claude-haiku
 3. 分类器判定复杂度 simple/medium/complex；分类失败保守回退
    medium，绝不降为 simple
 4. simple → gemini-flash，medium → gpt-4o-mini，complex → claude-haiku

显式指定 forced provider 时跳过全部规则。

# 失败语义

被选提供者调用失败时错误原样传播，不做静默降级或重试换档，
仅记录出错的提供者。

# 成本核算

CostTracker 按静态单价表（美元/百万 token）累计进程级用量；
上游未返回用量时用 tiktoken cl100k_base 本地估算。
*/
package router
