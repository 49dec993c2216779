// Package enrollment содержит доменную модель записи студента на стажировку.
//
// Пакет определяет:
//
//   - Сущности: Enrollment, CompletionRecord
//   - Value Objects: PaymentState, Kind, NotificationStatus
//   - Политику сроков (DuePolicy) и предикат IsDue для каждого вида уведомлений
//   - Интерфейс хранилища Repository
//
// # Жизненный цикл
//
// Запись создаётся при регистрации, затем планировщик по расписанию
// рассылает письма (детали программы, offer letter, еженедельные задания,
// сертификат) и атомарно выставляет флаги отправки. Каждый флаг
// переходит false→true ровно один раз:
//
//	due := enrollment.IsDue(e, enrollment.KindDetails, now, policy)
//	if due {
//	    // отправить письмо, затем repo.MarkSent(ctx, enrollment.MarkFor(e, kind, now))
//	}
//
// Через RetentionAge после создания запись удаляется вместе с отметками
// о выполненных проектах.
//
// # Прогресс
//
// Прогресс всегда пересчитывается из количества CompletionRecord:
//
//	progress := enrollment.ComputeProgress(completed, totalUnits) // floor(100*k/n)
//
// Пакет не имеет внешних зависимостей.
package enrollment
