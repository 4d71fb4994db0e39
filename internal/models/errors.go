package models

import "errors"

// 错误分类,各层通过 errors.Is 识别
var (
    // ErrUnsupportedFormat 无法识别或不受支持的容器格式(含加密 PDF)
    ErrUnsupportedFormat = errors.New("unsupported format")
    // ErrCorruptDocument 声明格式可识别但内容无法解析
    ErrCorruptDocument = errors.New("corrupt document")
    // ErrOcrEngineUnavailable OCR 引擎对单页失败,按页降级为警告
    ErrOcrEngineUnavailable = errors.New("ocr engine unavailable")
    // ErrAnalysisUnavailable AI 分析不可用,手动路径不受影响
    ErrAnalysisUnavailable = errors.New("analysis unavailable")
    // ErrRender 脱敏渲染失败,不发布任何产物
    ErrRender = errors.New("render error")
    // ErrNotFound 未知的文件标识
    ErrNotFound = errors.New("not found")
)
