/*
Package acquire 实现一次检索下载任务中与页面交互的部分。

组成:
  - Tracker: 操作之后判断当前页面是原地跳转还是打开了新标签页
  - Session: 持有浏览器会话和唯一的"当前页"指针,完成首页、文献类型和检索
  - Extractor: 把结果列表转换为 models.Record,处理翻页
  - Worker: 在独占标签页中打开详情页并下载单篇文献

当前页指针只在准备阶段(首页、文献类型、检索、翻页)由 Tracker 修改。
下载阶段的 Worker 各自从 browser.TabPool 获取标签页,不读写该指针。

基本用法:

	session := acquire.NewSession(launcher, cfg, logger)
	defer session.Close()

	if err := session.Launch(ctx); err != nil {
		return err
	}
	session.NavigateHome(ctx)
	session.SelectCategory(ctx, models.CategoryDissertation)
	session.PerformSearch(ctx, "人工智能")

	records, err := acquire.NewExtractor(session, logger).CollectUpTo(ctx, 10)
*/
package acquire
