// Copyright (c) VoxFlow Authors.
// Licensed under the MIT License.

/*
# 概述

包 embedding 提供文本嵌入的统一接口与 OpenAI 实现，供语义缓存
计算查询向量。Cosine 函数实现余弦相似度比较。

嵌入向量与模型修订绑定：Provider.ModelRevision 的值随缓存条目持久化，
修订不匹配的条目在查找时被跳过。
*/
package embedding
