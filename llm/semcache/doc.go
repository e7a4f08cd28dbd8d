// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 semcache 实现基于嵌入相似度的语义响应缓存。近似重复的查询
直接复用已缓存的 LLM 响应，跳过路由与模型调用。

# 匹配规则

  - 对 cache:* 条目做全量扫描，逐条计算余弦相似度
  - 相似度最高且 >= 阈值（默认 0.92）的条目命中
  - 相同分数保留先扫描到的条目
  - 条目携带嵌入模型修订，修订不匹配的条目跳过

# 降级语义

缓存层任何故障（嵌入 API、Redis）都记录警告并降级为未命中或
空操作，绝不向调用方传播错误。

# 键格式

cache:<md5(query)> — 键仅作索引用，匹配完全基于向量相似度。
*/
package semcache
